package lexer

import "testing"

func TestScanPunctuationAndOperators(t *testing.T) {
	src := "(){},.-+;/* ! != = == < <= > >="
	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenComma, TokenDot, TokenMinus, TokenPlus, TokenSemicolon,
		TokenSlash, TokenStar, TokenBang, TokenBangEqual, TokenEqual,
		TokenEqualEqual, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual,
		TokenEOF,
	}
	l := New(src)
	for i, wantType := range want {
		tok := l.NextToken()
		if tok.Type != wantType {
			t.Fatalf("token %d: got %s, want %s (lexeme %q)", i, tok.Type, wantType, tok.Lexeme)
		}
	}
}

func TestScanKeywordsVsIdentifiers(t *testing.T) {
	l := New("class orchard")
	if tok := l.NextToken(); tok.Type != TokenClass {
		t.Fatalf("expected CLASS, got %s", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != TokenIdentifier || tok.Lexeme != "orchard" {
		t.Fatalf("'orchard' should scan as an identifier, not a keyword prefix match; got %s %q", tok.Type, tok.Lexeme)
	}
}

func TestScanStringLiteral(t *testing.T) {
	l := New(`"hello, world"`)
	tok := l.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("expected STRING, got %s", tok.Type)
	}
	if got := StringLiteral(tok); got != "hello, world" {
		t.Errorf("StringLiteral = %q, want %q", got, "hello, world")
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"never closes`)
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("expected ERROR, got %s", tok.Type)
	}
}

func TestScanNumberLiterals(t *testing.T) {
	l := New("123 45.67")
	if tok := l.NextToken(); tok.Lexeme != "123" {
		t.Errorf("got %q, want 123", tok.Lexeme)
	}
	if tok := l.NextToken(); tok.Lexeme != "45.67" {
		t.Errorf("got %q, want 45.67", tok.Lexeme)
	}
}

func TestLineCommentsAreSkipped(t *testing.T) {
	l := New("1 // this is a comment\n2")
	first := l.NextToken()
	second := l.NextToken()
	if first.Lexeme != "1" || second.Lexeme != "2" {
		t.Fatalf("comment should be skipped entirely: got %q then %q", first.Lexeme, second.Lexeme)
	}
	if second.Line != 2 {
		t.Errorf("token after the comment's newline should be on line 2, got %d", second.Line)
	}
}

func TestUnexpectedCharacterProducesErrorToken(t *testing.T) {
	l := New("@")
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("expected ERROR for '@', got %s", tok.Type)
	}
}
