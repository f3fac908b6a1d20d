package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expressions for literals
)

// Verifier checks generated SQL before it reaches the database: it must be a
// single SELECT that reads only the allowed tables.
type Verifier struct {
	allowed map[string]struct{}
	pool    sync.Pool
}

// NewVerifier creates a Verifier allowing reads from the given tables
func NewVerifier(tables ...string) *Verifier {
	allowed := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &Verifier{
		allowed: allowed,
		pool:    sync.Pool{New: func() any { return parser.New() }},
	}
}

// Verify parses sql and rejects anything but a single SELECT over allowed tables
func (v *Verifier) Verify(sql string) error {
	p := v.pool.Get().(*parser.Parser)
	defer v.pool.Put(p)

	stmtNodes, _, err := p.Parse(sql, "", "")
	if err != nil {
		return fmt.Errorf("SQL parse error: %v", err)
	}
	if len(stmtNodes) != 1 {
		return fmt.Errorf("only single SQL statements are allowed")
	}
	if _, ok := stmtNodes[0].(*ast.SelectStmt); !ok {
		return fmt.Errorf("only SELECT statements are allowed")
	}

	visitor := &tableVisitor{allowed: v.allowed}
	stmtNodes[0].Accept(visitor)
	return visitor.err
}

// Normalize returns the parser's canonical rendering of sql. Used in tests
// and debug logging to compare statements independent of whitespace.
func (v *Verifier) Normalize(sql string) (string, error) {
	p := v.pool.Get().(*parser.Parser)
	defer v.pool.Put(p)

	stmt, err := p.ParseOneStmt(sql, "", "")
	if err != nil {
		return "", fmt.Errorf("SQL parse error: %v", err)
	}
	var sb strings.Builder
	if err := stmt.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", fmt.Errorf("SQL restore error: %v", err)
	}
	return sb.String(), nil
}

type tableVisitor struct {
	allowed map[string]struct{}
	err     error
}

func (t *tableVisitor) Enter(in ast.Node) (ast.Node, bool) {
	if t.err != nil {
		return in, true
	}
	if tn, ok := in.(*ast.TableName); ok {
		if _, ok := t.allowed[tn.Name.L]; !ok {
			t.err = fmt.Errorf("table '%s' may not be read by generated queries", tn.Name.O)
			return in, true
		}
	}
	return in, false
}

func (t *tableVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}
