package graphile

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

type rootKind int

const (
	rootAll rootKind = iota
	rootByPK
	rootByNodeID
	rootCreate
	rootUpdate
	rootDelete
)

type rootField struct {
	kind  rootKind
	table *tableInfo
}

// fieldInfo maps a GraphQL field onto a column.
type fieldInfo struct {
	Name   string
	Column *Column
	Scalar string
}

type orderTerm struct {
	column string
	desc   bool
}

type tableInfo struct {
	Table  *Table
	Names  names
	Fields []*fieldInfo

	byField  map[string]*fieldInfo
	byColumn map[string]*fieldInfo
	orderBy  map[string][]orderTerm
	// conditionable is false when no column supports equality.
	conditionable bool
}

func (t *tableInfo) hasPK() bool {
	return len(t.Table.PrimaryKey) > 0
}

func (t *tableInfo) defaultOrder() string {
	if t.hasPK() {
		return "PRIMARY_KEY_ASC"
	}
	return "NATURAL"
}

// Schema is a built GraphQL schema plus what execution needs to map it
// back onto the catalog.
type Schema struct {
	SDL     string
	AST     *ast.Schema
	Catalog *Catalog

	tables   []*tableInfo
	byType   map[string]*tableInfo
	byPlural map[string]*tableInfo
	query    map[string]rootField
	mutation map[string]rootField
}

// scalarFor maps a Postgres type name onto a GraphQL scalar.
func scalarFor(pgType string) string {
	switch pgType {
	case "int2", "int4":
		return "Int"
	case "int8":
		return "BigInt"
	case "numeric", "money":
		return "BigFloat"
	case "float4", "float8":
		return "Float"
	case "bool":
		return "Boolean"
	case "uuid":
		return "UUID"
	case "timestamp", "timestamptz":
		return "Datetime"
	case "date":
		return "Date"
	case "time", "timetz":
		return "Time"
	case "json", "jsonb":
		return "JSON"
	default:
		return "String"
	}
}

// equatable columns can be used in conditions and orderings.
func equatable(f *fieldInfo) bool {
	return !f.Column.IsArray() && f.Scalar != "JSON"
}

func newTableInfo(t *Table) *tableInfo {
	info := &tableInfo{
		Table:    t,
		Names:    inflect(t),
		byField:  map[string]*fieldInfo{},
		byColumn: map[string]*fieldInfo{},
		orderBy:  map[string][]orderTerm{"NATURAL": nil},
	}

	for _, col := range t.Columns {
		name := camel(col.Name)
		if name == "nodeId" || name == "" {
			name = "row" + pascal(col.Name)
		}
		f := &fieldInfo{Name: name, Column: col, Scalar: scalarFor(col.ElementType())}
		info.Fields = append(info.Fields, f)
		info.byField[f.Name] = f
		info.byColumn[col.Name] = f

		if equatable(f) {
			info.conditionable = true
			info.orderBy[constantCase(col.Name)+"_ASC"] = []orderTerm{{column: col.Name}}
			info.orderBy[constantCase(col.Name)+"_DESC"] = []orderTerm{{column: col.Name, desc: true}}
		}
	}

	if info.hasPK() {
		var asc, desc []orderTerm
		for _, col := range t.PrimaryKey {
			asc = append(asc, orderTerm{column: col})
			desc = append(desc, orderTerm{column: col, desc: true})
		}
		info.orderBy["PRIMARY_KEY_ASC"] = asc
		info.orderBy["PRIMARY_KEY_DESC"] = desc
	}

	return info
}

// Build generates the SDL for cat and loads it.
func Build(cat *Catalog) (*Schema, error) {
	s := &Schema{
		Catalog:  cat,
		byType:   map[string]*tableInfo{},
		byPlural: map[string]*tableInfo{},
		query:    map[string]rootField{},
		mutation: map[string]rootField{},
	}

	for _, t := range cat.Tables {
		info := newTableInfo(t)
		if other, ok := s.byType[info.Names.Type]; ok {
			return nil, fmt.Errorf("tables %s.%s and %s.%s both map to type %s",
				other.Table.Schema, other.Table.Name, t.Schema, t.Name, info.Names.Type)
		}
		s.tables = append(s.tables, info)
		s.byType[info.Names.Type] = info
		s.byPlural[info.Names.Plural] = info

		s.query[info.Names.AllField] = rootField{kind: rootAll, table: info}
		if info.hasPK() {
			s.query[info.Names.ByPKField] = rootField{kind: rootByPK, table: info}
			s.query[info.Names.NodeField] = rootField{kind: rootByNodeID, table: info}
		}
		if t.Insertable() {
			s.mutation[info.Names.CreateField] = rootField{kind: rootCreate, table: info}
			if info.hasPK() {
				s.mutation[info.Names.UpdateField] = rootField{kind: rootUpdate, table: info}
				s.mutation[info.Names.DeleteField] = rootField{kind: rootDelete, table: info}
			}
		}
	}

	s.SDL = s.render()

	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "graphile.graphql", Input: s.SDL})
	if err != nil {
		return nil, fmt.Errorf("loading generated schema: %w", err)
	}
	s.AST = schema

	return s, nil
}

const preamble = `"""An object with a globally unique ` + "`ID`" + `."""
interface Node {
  """A globally unique identifier. Can be used in various places throughout the system to identify this single value."""
  nodeId: ID!
}

"""A signed eight-byte integer, encoded as a string."""
scalar BigInt

"""An arbitrary precision decimal, encoded as a string."""
scalar BigFloat

"""A point in time as described by the ISO 8601 standard."""
scalar Datetime

"""A calendar date in YYYY-MM-DD format."""
scalar Date

"""A time of day in HH:MM:SS format."""
scalar Time

"""A JSON value."""
scalar JSON

"""A universally unique identifier."""
scalar UUID

"""Information about pagination in a connection."""
type PageInfo {
  """When paginating forwards, are there more items?"""
  hasNextPage: Boolean!
  """When paginating backwards, are there more items?"""
  hasPreviousPage: Boolean!
}
`

func (s *Schema) render() string {
	var b strings.Builder
	b.WriteString(preamble)

	b.WriteString("\n\"\"\"The root query type which gives access points into the data universe.\"\"\"\n")
	b.WriteString("type Query implements Node {\n")
	b.WriteString("  \"\"\"Exposes the root query type nested one level down.\"\"\"\n  query: Query!\n")
	b.WriteString("  \"\"\"The root query type must be a `Node` to work well with Relay, its id is always `query`.\"\"\"\n  nodeId: ID!\n")
	b.WriteString("  \"\"\"Fetches an object given its globally unique `ID`.\"\"\"\n  node(nodeId: ID!): Node\n")
	for _, t := range s.tables {
		n := t.Names
		fmt.Fprintf(&b, "  \"\"\"Reads and enables pagination through a set of `%s`.\"\"\"\n", n.Type)
		fmt.Fprintf(&b, "  %s(first: Int, offset: Int, orderBy: [%s!] = [%s]", n.AllField, n.OrderBy, t.defaultOrder())
		if t.conditionable {
			fmt.Fprintf(&b, ", condition: %s", n.Condition)
		}
		fmt.Fprintf(&b, "): %s\n", n.Connection)
		if t.hasPK() {
			fmt.Fprintf(&b, "  %s(%s): %s\n", n.ByPKField, t.pkArgs(), n.Type)
			fmt.Fprintf(&b, "  \"\"\"Reads a single `%s` using its globally unique `ID`.\"\"\"\n", n.Type)
			fmt.Fprintf(&b, "  %s(nodeId: ID!): %s\n", n.NodeField, n.Type)
		}
	}
	b.WriteString("}\n")

	for _, t := range s.tables {
		t.render(&b)
	}

	if len(s.mutation) > 0 {
		b.WriteString("\n\"\"\"The root mutation type which contains root level fields which mutate data.\"\"\"\n")
		b.WriteString("type Mutation {\n")
		for _, t := range s.tables {
			if !t.Table.Insertable() {
				continue
			}
			n := t.Names
			fmt.Fprintf(&b, "  \"\"\"Creates a single `%s`.\"\"\"\n", n.Type)
			fmt.Fprintf(&b, "  %s(input: %s!): %s\n", n.CreateField, n.Input, n.Type)
			if t.hasPK() {
				fmt.Fprintf(&b, "  \"\"\"Updates a single `%s` using a unique key and a patch.\"\"\"\n", n.Type)
				fmt.Fprintf(&b, "  %s(%s, patch: %s!): %s\n", n.UpdateField, t.pkArgs(), n.Patch, n.Type)
				fmt.Fprintf(&b, "  \"\"\"Deletes a single `%s` using a unique key.\"\"\"\n", n.Type)
				fmt.Fprintf(&b, "  %s(%s): %s\n", n.DeleteField, t.pkArgs(), n.Type)
			}
		}
		b.WriteString("}\n")
	}

	return b.String()
}

func (t *tableInfo) pkArgs() string {
	args := make([]string, len(t.Table.PrimaryKey))
	for i, col := range t.Table.PrimaryKey {
		f := t.byColumn[col]
		args[i] = fmt.Sprintf("%s: %s!", f.Name, f.Scalar)
	}
	return strings.Join(args, ", ")
}

func (t *tableInfo) render(b *strings.Builder) {
	n := t.Names

	b.WriteString("\n")
	writeDescription(b, "", t.Table.Comment)
	if t.hasPK() {
		fmt.Fprintf(b, "type %s implements Node {\n", n.Type)
		b.WriteString("  \"\"\"A globally unique identifier. Can be used in various places throughout the system to identify this single value.\"\"\"\n  nodeId: ID!\n")
	} else {
		fmt.Fprintf(b, "type %s {\n", n.Type)
	}
	for _, f := range t.Fields {
		writeDescription(b, "  ", f.Column.Comment)
		fmt.Fprintf(b, "  %s: %s\n", f.Name, outputType(f))
	}
	b.WriteString("}\n")

	fmt.Fprintf(b, "\n\"\"\"A connection to a list of `%s` values.\"\"\"\n", n.Type)
	fmt.Fprintf(b, "type %s {\n", n.Connection)
	fmt.Fprintf(b, "  \"\"\"A list of `%s` objects.\"\"\"\n  nodes: [%s]!\n", n.Type, n.Type)
	fmt.Fprintf(b, "  \"\"\"The count of *all* `%s` you could get from the connection.\"\"\"\n  totalCount: Int!\n", n.Type)
	b.WriteString("  \"\"\"Information to aid in pagination.\"\"\"\n  pageInfo: PageInfo!\n")
	b.WriteString("}\n")

	fmt.Fprintf(b, "\n\"\"\"Methods to use when ordering `%s`.\"\"\"\n", n.Type)
	fmt.Fprintf(b, "enum %s {\n  NATURAL\n", n.OrderBy)
	for _, f := range t.Fields {
		if equatable(f) {
			fmt.Fprintf(b, "  %s_ASC\n  %s_DESC\n", constantCase(f.Column.Name), constantCase(f.Column.Name))
		}
	}
	if t.hasPK() {
		b.WriteString("  PRIMARY_KEY_ASC\n  PRIMARY_KEY_DESC\n")
	}
	b.WriteString("}\n")

	if t.conditionable {
		fmt.Fprintf(b, "\n\"\"\"A condition to be used against `%s` object types. All fields are tested for equality and combined with a logical and.\"\"\"\n", n.Type)
		fmt.Fprintf(b, "input %s {\n", n.Condition)
		for _, f := range t.Fields {
			if equatable(f) {
				fmt.Fprintf(b, "  %s: %s\n", f.Name, f.Scalar)
			}
		}
		b.WriteString("}\n")
	}

	if t.Table.Insertable() {
		fmt.Fprintf(b, "\n\"\"\"An input for mutations affecting `%s`.\"\"\"\n", n.Type)
		fmt.Fprintf(b, "input %s {\n", n.Input)
		for _, f := range t.Fields {
			fmt.Fprintf(b, "  %s: %s\n", f.Name, inputType(f, f.Column.NotNull && !f.Column.HasDefault))
		}
		b.WriteString("}\n")

		fmt.Fprintf(b, "\n\"\"\"Represents an update to a `%s`. Fields that are set will be updated.\"\"\"\n", n.Type)
		fmt.Fprintf(b, "input %s {\n", n.Patch)
		for _, f := range t.Fields {
			fmt.Fprintf(b, "  %s: %s\n", f.Name, inputType(f, false))
		}
		b.WriteString("}\n")
	}
}

func outputType(f *fieldInfo) string {
	return inputType(f, f.Column.NotNull)
}

func inputType(f *fieldInfo, required bool) string {
	typ := f.Scalar
	if f.Column.IsArray() {
		typ = "[" + typ + "]"
	}
	if required {
		typ += "!"
	}
	return typ
}

// writeDescription writes a comment as a block string, dropping smart
// tag lines such as @omit.
func writeDescription(b *strings.Builder, indent, comment string) {
	var lines []string
	for _, line := range strings.Split(comment, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "@") {
			continue
		}
		lines = append(lines, line)
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return
	}
	text = strings.ReplaceAll(text, `"""`, `\"""`)
	fmt.Fprintf(b, "%s\"\"\"%s\"\"\"\n", indent, text)
}
