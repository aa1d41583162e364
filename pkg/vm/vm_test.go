package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func run(t *testing.T, source string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	v := New(&out, &errOut, zerolog.Nop(), false)
	err = v.Interpret(source)
	return out.String(), errOut.String(), err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, _, err := run(t, "print 1 + 2 * 3;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "7\n" {
		t.Errorf("stdout = %q, want %q", out, "7\n")
	}
}

func TestStringConcatenation(t *testing.T) {
	out, _, err := run(t, `print "foo" + "bar";`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "foobar\n" {
		t.Errorf("stdout = %q, want %q", out, "foobar\n")
	}
}

func TestGlobalVariables(t *testing.T) {
	out, _, err := run(t, "var x = 10; x = x + 5; print x;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "15\n" {
		t.Errorf("stdout = %q, want %q", out, "15\n")
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	src := `
fun makeCounter() {
  var i = 0;
  fun count() {
    i = i + 1;
    print i;
  }
  return count;
}
var counter = makeCounter();
counter();
counter();
`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "1\n2\n" {
		t.Errorf("stdout = %q, want %q", out, "1\n2\n")
	}
}

func TestClassesAndMethods(t *testing.T) {
	src := `
class Greeter {
  init(name) {
    this.name = name;
  }
  greet() {
    print "hello " + this.name;
  }
}
var g = Greeter("world");
g.greet();
`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world\n" {
		t.Errorf("stdout = %q, want %q", out, "hello world\n")
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	src := `
class Animal {
  speak() {
    print "...";
  }
}
class Dog < Animal {
  speak() {
    super.speak();
    print "woof";
  }
}
Dog().speak();
`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "...\nwoof\n" {
		t.Errorf("stdout = %q, want %q", out, "...\nwoof\n")
	}
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, _, err := run(t, "print doesNotExist;")
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if !strings.Contains(err.Error(), "Undefined variable") {
		t.Errorf("error message = %q, want it to mention the undefined variable", err.Error())
	}
}

func TestTypeMismatchIsRuntimeError(t *testing.T) {
	_, _, err := run(t, `print 1 + "two";`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
}

func TestCompileErrorReturnsCompileError(t *testing.T) {
	_, _, err := run(t, "var = ;")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if _, ok := err.(*CompileError); !ok {
		t.Fatalf("expected *CompileError, got %T", err)
	}
}

func TestRuntimeErrorIncludesStackTrace(t *testing.T) {
	src := `
fun a() { return 1 + "x"; }
fun b() { return a(); }
b();
`
	_, _, err := run(t, src)
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %T (%v)", err, err)
	}
	if len(rerr.Frames) < 2 {
		t.Errorf("expected at least 2 stack frames, got %d", len(rerr.Frames))
	}
}

func TestWhileAndForLoops(t *testing.T) {
	src := `
var sum = 0;
for (var i = 0; i < 5; i = i + 1) {
  sum = sum + i;
}
print sum;
var n = 0;
while (n < 3) {
  n = n + 1;
}
print n;
`
	out, _, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "10\n3\n" {
		t.Errorf("stdout = %q, want %q", out, "10\n3\n")
	}
}

func TestStressGCDoesNotCorruptExecution(t *testing.T) {
	var out, errOut bytes.Buffer
	v := New(&out, &errOut, zerolog.Nop(), false)
	v.SetStressGC(true)
	src := `
var total = 0;
for (var i = 0; i < 200; i = i + 1) {
  var s = "iteration";
  total = total + 1;
}
print total;
`
	if err := v.Interpret(src); err != nil {
		t.Fatalf("unexpected error under GC stress: %v", err)
	}
	if out.String() != "200\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "200\n")
	}
	if v.GCCycles() == 0 {
		t.Error("stress mode should have triggered at least one collection")
	}
}
