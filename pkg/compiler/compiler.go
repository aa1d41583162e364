// Package compiler implements the single-pass Pratt parser that compiles
// source directly to bytecode. There is no intermediate AST: each parse
// function both consumes tokens and emits chunk bytes as it goes, the
// same way clox's compiler.c and kristofer-smog's recursive-descent
// parser walk a grammar, except here the "build a node" step is
// replaced by "emit an instruction".
//
// Grounded on clox's compiler.c (original_source/src/compiler.c) for the
// Pratt precedence table, local/upvalue resolution, and jump-patching
// technique the spec requires; doc-comment density and panic-mode error
// recovery style follow kristofer-smog/pkg/compiler/compiler.go and
// pkg/parser/parser.go.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"ember/pkg/chunk"
	"ember/pkg/gc"
	"ember/pkg/lexer"
	"ember/pkg/table"
	"ember/pkg/value"
)

// FunctionType distinguishes the kind of function body currently being
// compiled, which changes how `this`/`super`/implicit-return behave.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeInitializer
	TypeMethod
	TypeScript
)

const maxLocals = 256
const maxUpvalues = 256
const maxArity = 255

// Local tracks one slot on the compiler's notional local-variable stack.
type Local struct {
	Name       string
	Depth      int // -1 means "declared but not yet defined"
	IsCaptured bool
}

// upvalueRef records how a function captures one free variable: either
// from the immediately enclosing function's locals (IsLocal) or from
// that function's own upvalues.
type upvalueRef struct {
	Index   byte
	IsLocal bool
}

// fnCompiler is one activation of the compiler, one per nested function
// (including the implicit top-level script function).
type fnCompiler struct {
	enclosing  *fnCompiler
	function   *value.FunctionObj
	chunk      *chunk.Chunk
	fnType     FunctionType
	locals     []Local
	upvalues   []upvalueRef
	scopeDepth int
}

// classCompiler tracks the class body currently being compiled, chained
// so nested classes (and `super` resolution) see their enclosing class.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler drives the whole single-pass parse-and-emit process for one
// source unit.
type Compiler struct {
	lex     *lexer.Lexer
	current lexer.Token
	prev    lexer.Token

	hadError  bool
	panicMode bool
	errors    []string

	cur   *fnCompiler
	class *classCompiler

	strings *table.Table
	gc      *gc.Collector
	pinned  []*value.Obj
}

// Compile compiles source into a top-level script function. strings is
// the shared intern table (also used for globals' keys) and collector
// tracks every string/function allocation the compiler performs. On
// failure the returned function is nil and errs holds one formatted
// diagnostic per parse error, in spec §6's "[line N] Error at 'X': msg"
// form.
func Compile(source string, strings *table.Table, collector *gc.Collector) (*value.FunctionObj, []string) {
	c := &Compiler{
		lex:     lexer.New(source),
		strings: strings,
		gc:      collector,
	}
	if collector != nil {
		collector.SetCompilerRoots(c.compilerRoots, c.pinnedRoots)
		defer collector.SetCompilerRoots(nil, nil)
	}
	c.pushFunction(TypeScript, "")

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}

	fn, _ := c.endFunction()
	if c.hadError {
		return nil, c.errors
	}
	return fn, nil
}

// --- fnCompiler stack management ---

func (c *Compiler) pushFunction(ft FunctionType, name string) {
	fn := value.NewFunction()
	ch := chunk.New()
	fn.Chunk = ch

	fc := &fnCompiler{
		enclosing: c.cur,
		function:  fn,
		chunk:     ch,
		fnType:    ft,
	}
	// Slot 0 is reserved: the receiver for methods, an unnamed sentinel
	// for plain functions and the script.
	reserved := Local{Depth: 0}
	if ft == TypeMethod || ft == TypeInitializer {
		reserved.Name = "this"
	}
	fc.locals = append(fc.locals, reserved)
	// Install fc before tracking fn: compilerRoots walks c.cur's chain,
	// so fn must already be reachable from it before a Track call can
	// trigger a collection.
	c.cur = fc
	if collector := c.gc; collector != nil {
		collector.Track(&fn.Obj, 64)
	}
	if name != "" {
		fn.Name = c.intern(name)
	}
}

func (c *Compiler) endFunction() (*value.FunctionObj, []upvalueRef) {
	if c.cur == nil {
		panic(errors.Wrap(errNoActiveFunction, "endFunction"))
	}
	c.emitReturn()
	fn := c.cur.function
	upvals := c.cur.upvalues
	c.cur = c.cur.enclosing
	return fn, upvals
}

// errNoActiveFunction guards against a pushFunction/endFunction mismatch:
// every declaration/statement path that calls endFunction is reachable
// only from inside a body that pushFunction already opened, so c.cur
// being nil here means that pairing broke, not that the source is bad.
var errNoActiveFunction = errors.New("compiler: endFunction called with no active function compiler")

func (c *Compiler) chunkNow() *chunk.Chunk { return c.cur.chunk }

// compilerRoots marks every function object on the active nesting
// chain, so a collection triggered mid-compile doesn't sweep a function
// that isn't reachable from anywhere yet except this chain.
func (c *Compiler) compilerRoots() []*value.Obj {
	var roots []*value.Obj
	for fc := c.cur; fc != nil; fc = fc.enclosing {
		roots = append(roots, &fc.function.Obj)
	}
	return roots
}

func (c *Compiler) pinnedRoots() []*value.Obj { return c.pinned }

func (c *Compiler) pin(o *value.Obj) { c.pinned = append(c.pinned, o) }
func (c *Compiler) unpin()           { c.pinned = c.pinned[:len(c.pinned)-1] }

// --- token stream plumbing ---

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := fmt.Sprintf("at '%s'", tok.Lexeme)
	if tok.Type == lexer.TokenEOF {
		where = "at end"
	} else if tok.Type == lexer.TokenError {
		where = ""
	}

	var line string
	if where == "" {
		line = fmt.Sprintf("[line %d] Error: %s", tok.Line, msg)
	} else {
		line = fmt.Sprintf("[line %d] Error %s: %s", tok.Line, where, msg)
	}
	c.errors = append(c.errors, line)
}

// synchronize discards tokens after a parse error until it finds a
// plausible statement boundary, so one mistake doesn't cascade into a
// wall of spurious follow-on errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.prev.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

// --- emission helpers ---

func (c *Compiler) emitByte(b byte) { c.chunkNow().Write(b, c.prev.Line) }
func (c *Compiler) emitOp(op chunk.Op) { c.chunkNow().WriteOp(op, c.prev.Line) }
func (c *Compiler) emitOpByte(op chunk.Op, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitReturn() {
	if c.cur.fnType == TypeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunkNow().AddConstant(v)
	if idx >= chunk.MaxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

func (c *Compiler) emitJump(op chunk.Op) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunkNow().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	code := c.chunkNow().Code
	jump := len(code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
		return
	}
	code[offset] = byte((jump >> 8) & 0xff)
	code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.chunkNow().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// --- string interning ---

func (c *Compiler) intern(s string) *value.StringObj {
	hash := value.FNV1a(s)
	if existing := c.strings.FindString(s, hash); existing != nil {
		return existing
	}
	so := value.NewString(s)
	c.pin(&so.Obj)
	if c.gc != nil {
		c.gc.Track(&so.Obj, int64(24+len(s)))
	}
	c.unpin()
	c.strings.Set(so, value.Bool(true))
	return so
}

func (c *Compiler) identifierConstant(tok lexer.Token) byte {
	return c.makeConstant(value.FromObj(&c.intern(tok.Lexeme).Obj))
}

func identifiersEqual(a, b string) bool { return a == b }

// --- scopes and locals ---

func (c *Compiler) beginScope() { c.cur.scopeDepth++ }

func (c *Compiler) endScope() {
	c.cur.scopeDepth--
	for len(c.cur.locals) > 0 && c.cur.locals[len(c.cur.locals)-1].Depth > c.cur.scopeDepth {
		last := c.cur.locals[len(c.cur.locals)-1]
		if last.IsCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.cur.locals = c.cur.locals[:len(c.cur.locals)-1]
	}
}

func (c *Compiler) addLocal(name string) {
	if len(c.cur.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.cur.locals = append(c.cur.locals, Local{Name: name, Depth: -1})
}

func (c *Compiler) declareVariable() {
	if c.cur.scopeDepth == 0 {
		return
	}
	name := c.prev.Lexeme
	for i := len(c.cur.locals) - 1; i >= 0; i-- {
		l := c.cur.locals[i]
		if l.Depth != -1 && l.Depth < c.cur.scopeDepth {
			break
		}
		if identifiersEqual(l.Name, name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.cur.scopeDepth == 0 {
		return
	}
	c.cur.locals[len(c.cur.locals)-1].Depth = c.cur.scopeDepth
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.consume(lexer.TokenIdentifier, errMsg)
	c.declareVariable()
	if c.cur.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.prev)
}

func (c *Compiler) defineVariable(global byte) {
	if c.cur.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

func resolveLocal(fc *fnCompiler, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if identifiersEqual(fc.locals[i].Name, name) {
			if fc.locals[i].Depth == -1 {
				return -2 // sentinel: read in own initializer
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) resolveLocal(fc *fnCompiler, name string) int {
	idx := resolveLocal(fc, name)
	if idx == -2 {
		c.error("Can't read local variable in its own initializer.")
		return -1
	}
	return idx
}

func (c *Compiler) addUpvalue(fc *fnCompiler, index byte, isLocal bool) int {
	for i, uv := range fc.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues = append(fc.upvalues, upvalueRef{Index: index, IsLocal: isLocal})
	fc.function.UpvalueCount = len(fc.upvalues)
	return len(fc.upvalues) - 1
}

func (c *Compiler) resolveUpvalue(fc *fnCompiler, name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].IsCaptured = true
		return c.addUpvalue(fc, byte(local), true)
	}
	if up := c.resolveUpvalue(fc.enclosing, name); up != -1 {
		return c.addUpvalue(fc, byte(up), false)
	}
	return -1
}

// --- declarations ---

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	nameTok := c.prev
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOpByte(chunk.OpClass, nameConst)
	c.defineVariable(nameConst)

	cc := &classCompiler{enclosing: c.class}
	c.class = cc

	if c.match(lexer.TokenLess) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		c.variable(false, c.prev)
		if identifiersEqual(nameTok.Lexeme, c.prev.Lexeme) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(nameTok, false)
		c.emitOp(chunk.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // the class we namedVariable'd for method binding

	if cc.hasSuperclass {
		c.endScope()
	}
	c.class = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	nameTok := c.prev
	nameConst := c.identifierConstant(nameTok)

	ft := TypeMethod
	if nameTok.Lexeme == "init" {
		ft = TypeInitializer
	}
	c.functionBody(ft, nameTok.Lexeme)
	c.emitOpByte(chunk.OpMethod, nameConst)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.functionBody(TypeFunction, c.prev.Lexeme)
	c.defineVariable(global)
}

func (c *Compiler) functionBody(ft FunctionType, name string) {
	c.pushFunction(ft, name)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.cur.function.Arity++
			if c.cur.function.Arity > maxArity {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	fn, upvals := c.endFunction()

	c.emitOpByte(chunk.OpClosure, c.makeConstant(value.FromObj(&fn.Obj)))
	for _, uv := range upvals {
		if uv.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.Index)
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

// --- statements ---

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.cur.fnType == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.cur.fnType == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunkNow().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunkNow().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.chunkNow().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

// --- expressions: Pratt parser ---

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: precCall},
		lexer.TokenDot:          {infix: (*Compiler).dot, precedence: precCall},
		lexer.TokenMinus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: precTerm},
		lexer.TokenPlus:         {infix: (*Compiler).binary, precedence: precTerm},
		lexer.TokenSlash:        {infix: (*Compiler).binary, precedence: precFactor},
		lexer.TokenStar:         {infix: (*Compiler).binary, precedence: precFactor},
		lexer.TokenBang:         {prefix: (*Compiler).unary},
		lexer.TokenBangEqual:    {infix: (*Compiler).binary, precedence: precEquality},
		lexer.TokenEqualEqual:   {infix: (*Compiler).binary, precedence: precEquality},
		lexer.TokenGreater:      {infix: (*Compiler).binary, precedence: precComparison},
		lexer.TokenGreaterEqual: {infix: (*Compiler).binary, precedence: precComparison},
		lexer.TokenLess:         {infix: (*Compiler).binary, precedence: precComparison},
		lexer.TokenLessEqual:    {infix: (*Compiler).binary, precedence: precComparison},
		lexer.TokenIdentifier:   {prefix: identifierPrefix},
		lexer.TokenString:       {prefix: (*Compiler).stringLiteral},
		lexer.TokenNumber:       {prefix: (*Compiler).number},
		lexer.TokenAnd:          {infix: (*Compiler).and_, precedence: precAnd},
		lexer.TokenOr:           {infix: (*Compiler).or_, precedence: precOr},
		lexer.TokenFalse:        {prefix: (*Compiler).literal},
		lexer.TokenNil:          {prefix: (*Compiler).literal},
		lexer.TokenTrue:         {prefix: (*Compiler).literal},
		lexer.TokenThis:         {prefix: (*Compiler).this_},
		lexer.TokenSuper:        {prefix: (*Compiler).super_},
	}
}

func (c *Compiler) getRule(t lexer.TokenType) parseRule { return rules[t] }

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule := c.getRule(c.prev.Type)
	if rule.prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= c.getRule(c.current.Type).precedence {
		c.advance()
		infix := c.getRule(c.prev.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) number(_ bool) {
	n, err := strconv.ParseFloat(c.prev.Lexeme, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.Number(n))
}

func (c *Compiler) stringLiteral(_ bool) {
	s := lexer.StringLiteral(c.prev)
	c.emitConstant(value.FromObj(&c.intern(s).Obj))
}

func (c *Compiler) literal(_ bool) {
	switch c.prev.Type {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(_ bool) {
	opType := c.prev.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case lexer.TokenBang:
		c.emitOp(chunk.OpNot)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	}
}

func (c *Compiler) binary(_ bool) {
	opType := c.prev.Type
	rule := c.getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case lexer.TokenBangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	}
}

func (c *Compiler) and_(_ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(_ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(_ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(count)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.prev)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	case c.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(chunk.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func identifierPrefix(c *Compiler, canAssign bool) { c.variable(canAssign, c.prev) }

func (c *Compiler) variable(canAssign bool, nameTok lexer.Token) {
	c.namedVariable(nameTok, canAssign)
}

func (c *Compiler) namedVariable(tok lexer.Token, canAssign bool) {
	var getOp, setOp chunk.Op
	idx := c.resolveLocal(c.cur, tok.Lexeme)
	if idx != -1 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else if up := c.resolveUpvalue(c.cur, tok.Lexeme); up != -1 {
		idx = up
		getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
	} else {
		idx = int(c.identifierConstant(tok))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(idx))
	} else {
		c.emitOpByte(getOp, byte(idx))
	}
}

func (c *Compiler) this_(_ bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false, c.prev)
}

func (c *Compiler) super_(_ bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	superTok := c.prev
	c.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	name := c.identifierConstant(c.prev)

	c.namedVariable(lexer.Token{Type: lexer.TokenIdentifier, Lexeme: "this", Line: superTok.Line}, false)
	if c.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(lexer.Token{Type: lexer.TokenIdentifier, Lexeme: "super", Line: superTok.Line}, false)
		c.emitOpByte(chunk.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(lexer.Token{Type: lexer.TokenIdentifier, Lexeme: "super", Line: superTok.Line}, false)
		c.emitOpByte(chunk.OpGetSuper, name)
	}
}
