package scenario

import (
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeParse = "scenario_parse_error"
)

var (
	scenarioLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `#[^\n]*`},
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
		{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.-]*`},
		{Name: "Symbol", Pattern: `[\[\](),=]`},
	})

	scriptParser = participle.MustBuild[Script](
		participle.Lexer(scenarioLexer),
		participle.Elide("Whitespace", "Comment"),
	)
)

// Script is a list of editor operations and checks replayed against an
// element registry.
type Script struct {
	Statements []*Statement `parser:"@@*"`
}

type Statement struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Canvas  *CanvasStmt    `parser:"  @@"`
	Window  *WindowStmt    `parser:"| @@"`
	Zoom    *ZoomStmt      `parser:"| @@"`
	Add     *AddStmt       `parser:"| @@"`
	Move    *MoveStmt      `parser:"| @@"`
	Remove  *RemoveStmt    `parser:"| @@"`
	Refresh *RefreshStmt   `parser:"| @@"`
	Poll    *PollStmt      `parser:"| @@"`
	Query   *QueryStmt     `parser:"| @@"`
	Expect  *ExpectStmt    `parser:"| @@"`
}

// canvas WIDTH HEIGHT
type CanvasStmt struct {
	Width  float64 `parser:"'canvas' @Number"`
	Height float64 `parser:"@Number"`
}

// window X Y WIDTH HEIGHT
type WindowStmt struct {
	Rect RectLit `parser:"'window' @@"`
}

// zoom FACTOR
type ZoomStmt struct {
	Factor float64 `parser:"'zoom' @Number"`
}

// add ID [depth N] [scope NAME] [rect X Y WIDTH HEIGHT]
type AddStmt struct {
	ID      string       `parser:"'add' @Ident"`
	Options []*AddOption `parser:"@@*"`
}

type AddOption struct {
	Depth *int     `parser:"  'depth' @Number"`
	Scope *string  `parser:"| 'scope' @Ident"`
	Rect  *RectLit `parser:"| 'rect' @@"`
}

// move ID X Y WIDTH HEIGHT
type MoveStmt struct {
	ID   string  `parser:"'move' @Ident"`
	Rect RectLit `parser:"@@"`
}

// remove ID
type RemoveStmt struct {
	ID string `parser:"'remove' @Ident"`
}

// refresh ID
type RefreshStmt struct {
	ID string `parser:"'refresh' @Ident"`
}

// poll [SLICES]
type PollStmt struct {
	Keyword string `parser:"@'poll'"`
	Slices  *int   `parser:"@Number?"`
}

// query QUERY
type QueryStmt struct {
	Query *Query `parser:"'query' @@"`
}

// expect QUERY = [VALUES]
type ExpectStmt struct {
	Query  *Query   `parser:"'expect' @@"`
	Values []*Value `parser:"'=' '[' ( @@ ( ',' @@ )* )? ']'"`
}

type Query struct {
	FindIn   *RectLit  `parser:"  'findin' @@"`
	FindOn   *PointLit `parser:"| 'findon' @@"`
	Frontest *PointLit `parser:"| 'frontest' @@"`
	Rect     *string   `parser:"| 'rect' @Ident"`
	Boundary bool      `parser:"| @'boundary'"`
	Tracked  *string   `parser:"| 'tracked' @Ident"`
}

func (q *Query) String() string {
	switch {
	case q.FindIn != nil:
		return "findin " + q.FindIn.String()
	case q.FindOn != nil:
		return "findon " + q.FindOn.String()
	case q.Frontest != nil:
		return "frontest " + q.Frontest.String()
	case q.Rect != nil:
		return "rect " + *q.Rect
	case q.Boundary:
		return "boundary"
	case q.Tracked != nil:
		return "tracked " + *q.Tracked
	default:
		return "unknown"
	}
}

type RectLit struct {
	X      float64 `parser:"@Number"`
	Y      float64 `parser:"@Number"`
	Width  float64 `parser:"@Number"`
	Height float64 `parser:"@Number"`
}

func (r RectLit) String() string {
	return strings.Join(formatFloats(r.X, r.Y, r.Width, r.Height), " ")
}

type PointLit struct {
	X float64 `parser:"@Number"`
	Y float64 `parser:"@Number"`
}

func (p PointLit) String() string {
	return strings.Join(formatFloats(p.X, p.Y), " ")
}

// Value is an expected query value: a number or an identifier.
type Value struct {
	Number *float64 `parser:"  @Number"`
	Ident  *string  `parser:"| @Ident"`
}

func (v *Value) String() string {
	if v.Number != nil {
		return formatFloat(*v.Number)
	}
	if v.Ident != nil {
		return *v.Ident
	}
	return ""
}

// Parse parses a scenario from an io.Reader.
func Parse(r io.Reader) (*Script, error) {
	script, err := scriptParser.Parse("", r)
	if err != nil {
		return nil, errors.New("parsing scenario failed").
			WithType(ErrTypeParse).
			Wrap(err)
	}
	return script, nil
}

// ParseString parses a scenario from a string.
func ParseString(s string) (*Script, error) {
	return Parse(strings.NewReader(s))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloats(values ...float64) []string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = formatFloat(v)
	}
	return s
}
