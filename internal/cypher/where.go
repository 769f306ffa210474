package cypher

import (
	"errors"
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
)

var objectIDWord = regexp.MustCompile(`(?i)\bobjectid\b`)

// TranslateWhere turns a SQL where clause into an openCypher boolean
// expression over the node variable ns. Unqualified columns are qualified
// with ns, double-quoted names are column names and DATE/TIMESTAMP literals
// become Cypher temporal values. An empty clause yields "".
func TranslateWhere(where, ns string) (string, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return "", nil
	}
	where = objectIDWord.ReplaceAllString(where, "objectid")
	where, err := prepareSQL(where)
	if err != nil {
		return "", kgerr.Wrap(kgerr.KindFilterParse, "parse where", err)
	}

	stmt, err := sqlparser.Parse("SELECT * FROM placeholder AS " + ns + " WHERE " + where)
	if err != nil {
		return "", kgerr.Wrap(kgerr.KindFilterParse, "parse where", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || sel.Where == nil || sel.Where.Expr == nil {
		return "", kgerr.Wrap(kgerr.KindFilterParse, "parse where", errors.New("not a boolean expression"))
	}

	expr := expandRanges(sel.Where.Expr)
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if col, ok := node.(*sqlparser.ColName); ok && col.Qualifier.IsEmpty() {
			col.Qualifier = sqlparser.TableName{Name: sqlparser.NewTableIdent(ns)}
		}
		return true, nil
	}, expr)

	out, err := ToCypher(sqlparser.String(expr))
	if err != nil {
		return "", kgerr.Wrap(kgerr.KindFilterParse, "rewrite where", err)
	}
	return out, nil
}

// expandRanges replaces BETWEEN, which Cypher lacks, with a pair of bounds.
func expandRanges(e sqlparser.Expr) sqlparser.Expr {
	switch x := e.(type) {
	case *sqlparser.AndExpr:
		x.Left, x.Right = expandRanges(x.Left), expandRanges(x.Right)
	case *sqlparser.OrExpr:
		x.Left, x.Right = expandRanges(x.Left), expandRanges(x.Right)
	case *sqlparser.NotExpr:
		x.Expr = expandRanges(x.Expr)
	case *sqlparser.ParenExpr:
		x.Expr = expandRanges(x.Expr)
	case *sqlparser.RangeCond:
		var out sqlparser.Expr = &sqlparser.ParenExpr{Expr: &sqlparser.AndExpr{
			Left:  &sqlparser.ComparisonExpr{Operator: sqlparser.GreaterEqualStr, Left: x.Left, Right: x.From},
			Right: &sqlparser.ComparisonExpr{Operator: sqlparser.LessEqualStr, Left: x.Left, Right: x.To},
		}}
		if x.Operator == sqlparser.NotBetweenStr {
			out = &sqlparser.NotExpr{Expr: out}
		}
		return out
	}
	return e
}

// objectIDFilter turns an objectIds list into a where clause.
func objectIDFilter(ids string) (string, error) {
	var parts []string
	for _, p := range strings.Split(ids, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return "", kgerr.New(kgerr.KindFilterParse, "parse objectIds", "invalid object id "+p)
			}
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "objectid in (" + strings.Join(parts, ",") + ")", nil
}
