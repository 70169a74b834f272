package graphile

import (
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2/ast"
)

func (x *execution) introspectSchema(set ast.SelectionSet) any {
	s := introspection.WrapSchema(x.schema.AST)

	out := newOrderedMap()
	for _, f := range x.collect(set, "__Schema", false) {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Schema")
		case "description":
			out.set(f.Alias, nil)
		case "types":
			types := s.Types()
			list := make([]any, len(types))
			for i := range types {
				list[i] = x.introspectType(&types[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "queryType":
			out.set(f.Alias, x.introspectType(s.QueryType(), f.SelectionSet))
		case "mutationType":
			out.set(f.Alias, x.introspectType(s.MutationType(), f.SelectionSet))
		case "subscriptionType":
			out.set(f.Alias, x.introspectType(s.SubscriptionType(), f.SelectionSet))
		case "directives":
			directives := s.Directives()
			list := make([]any, len(directives))
			for i := range directives {
				list[i] = x.introspectDirective(&directives[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		default:
			out.set(f.Alias, nil)
		}
	}
	return out
}

func (x *execution) introspectTypeByName(name string, set ast.SelectionSet) any {
	def := x.schema.AST.Types[name]
	if def == nil {
		return nil
	}
	return x.introspectType(introspection.WrapTypeFromDef(x.schema.AST, def), set)
}

func (x *execution) introspectType(t *introspection.Type, set ast.SelectionSet) any {
	if t == nil {
		return nil
	}

	kind := t.Kind()
	hasFields := kind == "OBJECT" || kind == "INTERFACE"

	out := newOrderedMap()
	for _, f := range x.collect(set, "__Type", false) {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Type")
		case "kind":
			out.set(f.Alias, kind)
		case "name":
			out.set(f.Alias, t.Name())
		case "description":
			out.set(f.Alias, t.Description())
		case "fields":
			if !hasFields {
				out.set(f.Alias, nil)
				continue
			}
			includeDeprecated, _ := f.ArgumentMap(x.vars)["includeDeprecated"].(bool)
			fields := t.Fields(includeDeprecated)
			list := make([]any, len(fields))
			for i := range fields {
				list[i] = x.introspectField(&fields[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "interfaces":
			if !hasFields {
				out.set(f.Alias, nil)
				continue
			}
			out.set(f.Alias, x.introspectTypes(t.Interfaces(), f.SelectionSet))
		case "possibleTypes":
			if kind != "INTERFACE" && kind != "UNION" {
				out.set(f.Alias, nil)
				continue
			}
			out.set(f.Alias, x.introspectTypes(t.PossibleTypes(), f.SelectionSet))
		case "enumValues":
			if kind != "ENUM" {
				out.set(f.Alias, nil)
				continue
			}
			includeDeprecated, _ := f.ArgumentMap(x.vars)["includeDeprecated"].(bool)
			values := t.EnumValues(includeDeprecated)
			list := make([]any, len(values))
			for i := range values {
				list[i] = x.introspectEnumValue(&values[i], f.SelectionSet)
			}
			out.set(f.Alias, list)
		case "inputFields":
			if kind != "INPUT_OBJECT" {
				out.set(f.Alias, nil)
				continue
			}
			out.set(f.Alias, x.introspectInputValues(t.InputFields(), f.SelectionSet))
		case "ofType":
			out.set(f.Alias, x.introspectType(t.OfType(), f.SelectionSet))
		case "isOneOf":
			out.set(f.Alias, false)
		default:
			out.set(f.Alias, nil)
		}
	}
	return out
}

func (x *execution) introspectTypes(types []introspection.Type, set ast.SelectionSet) []any {
	list := make([]any, len(types))
	for i := range types {
		list[i] = x.introspectType(&types[i], set)
	}
	return list
}

func (x *execution) introspectField(fd *introspection.Field, set ast.SelectionSet) any {
	out := newOrderedMap()
	for _, f := range x.collect(set, "__Field", false) {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Field")
		case "name":
			out.set(f.Alias, fd.Name)
		case "description":
			out.set(f.Alias, fd.Description())
		case "args":
			out.set(f.Alias, x.introspectInputValues(fd.Args, f.SelectionSet))
		case "type":
			out.set(f.Alias, x.introspectType(fd.Type, f.SelectionSet))
		case "isDeprecated":
			out.set(f.Alias, fd.IsDeprecated())
		case "deprecationReason":
			out.set(f.Alias, fd.DeprecationReason())
		default:
			out.set(f.Alias, nil)
		}
	}
	return out
}

func (x *execution) introspectInputValues(values []introspection.InputValue, set ast.SelectionSet) []any {
	list := make([]any, len(values))
	for i := range values {
		v := &values[i]
		out := newOrderedMap()
		for _, f := range x.collect(set, "__InputValue", false) {
			switch f.Name {
			case "__typename":
				out.set(f.Alias, "__InputValue")
			case "name":
				out.set(f.Alias, v.Name)
			case "description":
				out.set(f.Alias, v.Description())
			case "type":
				out.set(f.Alias, x.introspectType(v.Type, f.SelectionSet))
			case "defaultValue":
				out.set(f.Alias, v.DefaultValue)
			case "isDeprecated":
				out.set(f.Alias, false)
			default:
				out.set(f.Alias, nil)
			}
		}
		list[i] = out
	}
	return list
}

func (x *execution) introspectEnumValue(ev *introspection.EnumValue, set ast.SelectionSet) any {
	out := newOrderedMap()
	for _, f := range x.collect(set, "__EnumValue", false) {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__EnumValue")
		case "name":
			out.set(f.Alias, ev.Name)
		case "description":
			out.set(f.Alias, ev.Description())
		case "isDeprecated":
			out.set(f.Alias, ev.IsDeprecated())
		case "deprecationReason":
			out.set(f.Alias, ev.DeprecationReason())
		default:
			out.set(f.Alias, nil)
		}
	}
	return out
}

func (x *execution) introspectDirective(d *introspection.Directive, set ast.SelectionSet) any {
	out := newOrderedMap()
	for _, f := range x.collect(set, "__Directive", false) {
		switch f.Name {
		case "__typename":
			out.set(f.Alias, "__Directive")
		case "name":
			out.set(f.Alias, d.Name)
		case "description":
			out.set(f.Alias, d.Description())
		case "locations":
			out.set(f.Alias, d.Locations)
		case "args":
			out.set(f.Alias, x.introspectInputValues(d.Args, f.SelectionSet))
		case "isRepeatable":
			out.set(f.Alias, d.IsRepeatable)
		default:
			out.set(f.Alias, nil)
		}
	}
	return out
}
