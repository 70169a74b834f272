package graphile

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// pascal turns user_emails into UserEmails.
func pascal(s string) string {
	// Casers keep state, Build may run from the schema watcher.
	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' || r == '-' }) {
		b.WriteString(caser.String(part))
	}
	return b.String()
}

// camel turns github_id into githubId.
func camel(s string) string {
	p := pascal(s)
	if p == "" {
		return p
	}
	return strings.ToLower(p[:1]) + p[1:]
}

// constantCase turns created_at into CREATED_AT.
func constantCase(s string) string {
	return strings.ToUpper(strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' || r == '-' }), "_"))
}

var irregularPlurals = map[string]string{
	"person": "people",
	"child":  "children",
}

// swapSuffix replaces the last n bytes of word, keeping an upper case
// first letter when the whole word was replaced.
func swapSuffix(word string, n int, with string) string {
	head := word[:len(word)-n]
	if head == "" && word != "" && word[0] >= 'A' && word[0] <= 'Z' {
		with = strings.ToUpper(with[:1]) + with[1:]
	}
	return head + with
}

// singularize handles the plural forms table names usually take.
func singularize(word string) string {
	lower := strings.ToLower(word)
	for single, plural := range irregularPlurals {
		if strings.HasSuffix(lower, plural) {
			return swapSuffix(word, len(plural), single)
		}
	}
	switch {
	case strings.HasSuffix(lower, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(lower, "sses"), strings.HasSuffix(lower, "xes"),
		strings.HasSuffix(lower, "ches"), strings.HasSuffix(lower, "shes"):
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "ss"), strings.HasSuffix(lower, "us"):
		return word
	case strings.HasSuffix(lower, "s") && len(word) > 1:
		return word[:len(word)-1]
	}
	return word
}

func pluralize(word string) string {
	lower := strings.ToLower(word)
	for single, plural := range irregularPlurals {
		if strings.HasSuffix(lower, single) {
			return swapSuffix(word, len(single), plural)
		}
	}
	switch {
	case strings.HasSuffix(lower, "y") && len(word) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return word + "es"
	}
	return word + "s"
}

// names are the GraphQL names derived from one table.
type names struct {
	Type       string // UserEmail
	Plural     string // UserEmails
	Connection string // UserEmailsConnection
	Condition  string // UserEmailCondition
	OrderBy    string // UserEmailsOrderBy
	Input      string // UserEmailInput
	Patch      string // UserEmailPatch

	AllField    string // allUserEmails
	NodeField   string // userEmail
	ByPKField   string // userEmailById
	CreateField string // createUserEmail
	UpdateField string // updateUserEmailById
	DeleteField string // deleteUserEmailById
}

func inflect(t *Table) names {
	typeName := pascal(singularize(t.Name))
	plural := pluralize(typeName)

	var byPK string
	if len(t.PrimaryKey) > 0 {
		parts := make([]string, len(t.PrimaryKey))
		for i, col := range t.PrimaryKey {
			parts[i] = pascal(col)
		}
		byPK = "By" + strings.Join(parts, "And")
	}

	n := names{
		Type:       typeName,
		Plural:     plural,
		Connection: plural + "Connection",
		Condition:  typeName + "Condition",
		OrderBy:    plural + "OrderBy",
		Input:      typeName + "Input",
		Patch:      typeName + "Patch",
		AllField:   "all" + plural,
		NodeField:  camel(singularize(t.Name)),
	}
	if byPK != "" {
		n.ByPKField = n.NodeField + byPK
		n.UpdateField = "update" + typeName + byPK
		n.DeleteField = "delete" + typeName + byPK
	}
	n.CreateField = "create" + typeName
	return n
}
