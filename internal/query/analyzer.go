// Package query provides lightweight SQL statement analysis: it extracts the
// relations a statement references so failed queries can be explained against
// the engine's catalog without re-parsing engine error strings.
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "BlockComment", Pattern: `(?s)/\*.*?\*/`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_$]*`},
	{Name: "Punct", Pattern: `[(),;.*=<>!+\-/%|\[\]?:]`},
})

// Analysis summarizes the relations referenced by one SQL statement.
type Analysis struct {
	// Tables are the FROM/JOIN/INTO relations, deduplicated in encounter
	// order, with CTE names excluded.
	Tables []string
	// CTEs are the names introduced by a leading WITH clause.
	CTEs []string
}

// Analyze tokenizes sql and extracts referenced relations. The scan is
// heuristic rather than a full grammar: it is used only to improve error
// reporting, never to validate statements.
func Analyze(sql string) (Analysis, error) {
	var analysis Analysis

	lx, err := sqlLexer.LexString("", sql)
	if err != nil {
		return analysis, fmt.Errorf("lex sql: %w", err)
	}

	symbols := sqlLexer.Symbols()
	var tokens []lexer.Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return analysis, fmt.Errorf("lex sql: %w", err)
		}
		if tok.EOF() {
			break
		}
		if tok.Type == symbols["Whitespace"] || tok.Type == symbols["Comment"] || tok.Type == symbols["BlockComment"] {
			continue
		}
		tokens = append(tokens, tok)
	}

	analysis.CTEs = collectCTEs(tokens, symbols)
	analysis.Tables = collectRelations(tokens, symbols, analysis.CTEs)
	return analysis, nil
}

func isIdent(tok lexer.Token, symbols map[string]lexer.TokenType) bool {
	return tok.Type == symbols["Ident"] || tok.Type == symbols["QuotedIdent"]
}

func identText(tok lexer.Token, symbols map[string]lexer.TokenType) string {
	if tok.Type == symbols["QuotedIdent"] {
		inner := tok.Value[1 : len(tok.Value)-1]
		return strings.ReplaceAll(inner, `""`, `"`)
	}
	return tok.Value
}

func isKeyword(tok lexer.Token, symbols map[string]lexer.TokenType, word string) bool {
	return tok.Type == symbols["Ident"] && strings.EqualFold(tok.Value, word)
}

// collectCTEs walks a leading WITH clause: WITH [RECURSIVE] name [(cols)] AS
// ( ... ) [, name AS ( ... )]*.
func collectCTEs(tokens []lexer.Token, symbols map[string]lexer.TokenType) []string {
	var ctes []string
	i := 0
	if i >= len(tokens) || !isKeyword(tokens[i], symbols, "WITH") {
		return nil
	}
	i++
	if i < len(tokens) && isKeyword(tokens[i], symbols, "RECURSIVE") {
		i++
	}
	for i < len(tokens) {
		if !isIdent(tokens[i], symbols) {
			break
		}
		ctes = append(ctes, identText(tokens[i], symbols))
		i++
		if i < len(tokens) && tokens[i].Value == "(" {
			i = skipBalanced(tokens, i)
		}
		if i >= len(tokens) || !isKeyword(tokens[i], symbols, "AS") {
			break
		}
		i++
		if i >= len(tokens) || tokens[i].Value != "(" {
			break
		}
		i = skipBalanced(tokens, i)
		if i < len(tokens) && tokens[i].Value == "," {
			i++
			continue
		}
		break
	}
	return ctes
}

// skipBalanced advances past a balanced parenthesized group starting at open.
func skipBalanced(tokens []lexer.Token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].Value {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}

func collectRelations(tokens []lexer.Token, symbols map[string]lexer.TokenType, ctes []string) []string {
	var tables []string
	add := func(name string) {
		for _, cte := range ctes {
			if strings.EqualFold(cte, name) {
				return
			}
		}
		if !slices.ContainsFunc(tables, func(t string) bool { return strings.EqualFold(t, name) }) {
			tables = append(tables, name)
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !isKeyword(tok, symbols, "FROM") && !isKeyword(tok, symbols, "JOIN") && !isKeyword(tok, symbols, "INTO") {
			continue
		}
		j := i + 1
		for j < len(tokens) {
			if tokens[j].Value == "(" {
				// Derived table; its inner FROM clauses are picked up by the
				// outer loop as it advances.
				break
			}
			if !isIdent(tokens[j], symbols) {
				break
			}
			name := identText(tokens[j], symbols)
			j++
			// Qualified name: schema.table.
			for j+1 < len(tokens) && tokens[j].Value == "." && isIdent(tokens[j+1], symbols) {
				name += "." + identText(tokens[j+1], symbols)
				j += 2
			}
			add(name)
			// Comma-separated FROM list; skip an optional alias first.
			if j < len(tokens) && isIdent(tokens[j], symbols) && !reservedAfterRelation(tokens[j].Value) {
				j++
			} else if j < len(tokens) && isKeyword(tokens[j], symbols, "AS") {
				j += 2
			}
			if j < len(tokens) && tokens[j].Value == "," && isKeyword(tok, symbols, "FROM") {
				j++
				continue
			}
			break
		}
	}
	return tables
}

// reservedAfterRelation reports whether word cannot be a table alias because
// it starts the next clause.
func reservedAfterRelation(word string) bool {
	switch strings.ToUpper(word) {
	case "WHERE", "GROUP", "ORDER", "LIMIT", "OFFSET", "HAVING", "UNION",
		"INTERSECT", "EXCEPT", "JOIN", "INNER", "LEFT", "RIGHT", "FULL",
		"CROSS", "NATURAL", "ON", "USING", "WINDOW", "VALUES", "SELECT", "SET":
		return true
	default:
		return false
	}
}
