package a2ui

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Component is one node of a surface's component tree. Nodes refer to
// each other by ID.
type Component struct {
	ID        string        `json:"id"`
	Component ComponentSpec `json:"component"`
	Weight    *float64      `json:"weight,omitempty"`
}

// ComponentSpec holds exactly one component type, keyed by type name
// on the wire.
type ComponentSpec struct {
	Text      *Text      `json:"Text,omitempty"`
	Button    *Button    `json:"Button,omitempty"`
	Row       *Row       `json:"Row,omitempty"`
	Column    *Column    `json:"Column,omitempty"`
	List      *List      `json:"List,omitempty"`
	Card      *Card      `json:"Card,omitempty"`
	TextField *TextField `json:"TextField,omitempty"`
	Tabs      *Tabs      `json:"Tabs,omitempty"`
	Icon      *Icon      `json:"Icon,omitempty"`
	Divider   *Divider   `json:"Divider,omitempty"`
	Image     *Image     `json:"Image,omitempty"`
}

// Component type names.
const (
	TypeText      = "Text"
	TypeButton    = "Button"
	TypeRow       = "Row"
	TypeColumn    = "Column"
	TypeList      = "List"
	TypeCard      = "Card"
	TypeTextField = "TextField"
	TypeTabs      = "Tabs"
	TypeIcon      = "Icon"
	TypeDivider   = "Divider"
	TypeImage     = "Image"
)

// ComponentTypes lists every supported type name.
var ComponentTypes = []string{
	TypeText, TypeButton, TypeRow, TypeColumn, TypeList, TypeCard,
	TypeTextField, TypeTabs, TypeIcon, TypeDivider, TypeImage,
}

// Text displays a literal or data-bound string.
type Text struct {
	Text      TextValue `json:"text"`
	UsageHint string    `json:"usageHint,omitempty"`
}

// Button renders Child and dispatches Action when pressed.
type Button struct {
	Child     string  `json:"child"`
	Primary   *bool   `json:"primary,omitempty"`
	Secondary *bool   `json:"secondary,omitempty"`
	Action    *Action `json:"action,omitempty"`
}

// Row lays children out horizontally.
type Row struct {
	Children     Children `json:"children"`
	Alignment    string   `json:"alignment,omitempty"`
	Distribution string   `json:"distribution,omitempty"`
}

// Column lays children out vertically.
type Column struct {
	Children     Children `json:"children"`
	Alignment    string   `json:"alignment,omitempty"`
	Distribution string   `json:"distribution,omitempty"`
}

// List is a scrollable sequence, often fed by a template.
type List struct {
	Children  Children `json:"children"`
	Direction string   `json:"direction,omitempty"`
	Alignment string   `json:"alignment,omitempty"`
}

// Card frames a single child.
type Card struct {
	Child string `json:"child"`
}

// TextField is a labelled input whose Value binds into the data model.
type TextField struct {
	Label  TextValue  `json:"label"`
	Value  *TextValue `json:"value,omitempty"`
	Type   string     `json:"type,omitempty"`
	Action *Action    `json:"action,omitempty"`
}

// Tabs switches between TabItems.
type Tabs struct {
	TabItems           []TabItem `json:"tabItems"`
	SelectedTabBinding string    `json:"selectedTabBinding,omitempty"`
}

// TabItem is one tab of a Tabs component.
type TabItem struct {
	Title TextValue `json:"title"`
	Child string    `json:"child"`
}

// Icon shows a named icon.
type Icon struct {
	IconType string     `json:"iconType,omitempty"`
	Name     *TextValue `json:"name,omitempty"`
}

// Divider is a separator line.
type Divider struct {
	Orientation string `json:"orientation,omitempty"`
}

// Image shows the picture at URL.
type Image struct {
	URL       TextValue `json:"url"`
	Fit       string    `json:"fit,omitempty"`
	UsageHint string    `json:"usageHint,omitempty"`
}

// Type returns the name of the set component type, or "".
func (s ComponentSpec) Type() string {
	switch {
	case s.Text != nil:
		return TypeText
	case s.Button != nil:
		return TypeButton
	case s.Row != nil:
		return TypeRow
	case s.Column != nil:
		return TypeColumn
	case s.List != nil:
		return TypeList
	case s.Card != nil:
		return TypeCard
	case s.TextField != nil:
		return TypeTextField
	case s.Tabs != nil:
		return TypeTabs
	case s.Icon != nil:
		return TypeIcon
	case s.Divider != nil:
		return TypeDivider
	case s.Image != nil:
		return TypeImage
	}
	return ""
}

// ChildIDs returns the IDs this component references directly.
// Template children contribute their template component ID.
func (s ComponentSpec) ChildIDs() []string {
	switch {
	case s.Button != nil:
		return []string{s.Button.Child}
	case s.Card != nil:
		return []string{s.Card.Child}
	case s.Row != nil:
		return s.Row.Children.IDs()
	case s.Column != nil:
		return s.Column.Children.IDs()
	case s.List != nil:
		return s.List.Children.IDs()
	case s.Tabs != nil:
		ids := make([]string, 0, len(s.Tabs.TabItems))
		for _, t := range s.Tabs.TabItems {
			ids = append(ids, t.Child)
		}
		return ids
	}
	return nil
}

// UnmarshalJSON requires exactly one known component type key.
func (s *ComponentSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("component: %w", err)
	}
	var found []string
	for _, t := range ComponentTypes {
		if _, ok := raw[t]; ok {
			found = append(found, t)
		}
	}
	if len(found) != 1 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(found) == 0 {
			return fmt.Errorf("component: unknown type (keys: %v)", keys)
		}
		return fmt.Errorf("component: ambiguous type %v", found)
	}

	*s = ComponentSpec{}
	payload := raw[found[0]]
	var target any
	switch found[0] {
	case TypeText:
		s.Text = new(Text)
		target = s.Text
	case TypeButton:
		s.Button = new(Button)
		target = s.Button
	case TypeRow:
		s.Row = new(Row)
		target = s.Row
	case TypeColumn:
		s.Column = new(Column)
		target = s.Column
	case TypeList:
		s.List = new(List)
		target = s.List
	case TypeCard:
		s.Card = new(Card)
		target = s.Card
	case TypeTextField:
		s.TextField = new(TextField)
		target = s.TextField
	case TypeTabs:
		s.Tabs = new(Tabs)
		target = s.Tabs
	case TypeIcon:
		s.Icon = new(Icon)
		target = s.Icon
	case TypeDivider:
		s.Divider = new(Divider)
		target = s.Divider
	case TypeImage:
		s.Image = new(Image)
		target = s.Image
	}
	// Divider is often written as {"Divider": {}} or {"Divider": null}.
	if string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("component %s: %w", found[0], err)
	}
	return nil
}

// TextValue is either a literal string or a data-model path.
type TextValue struct {
	LiteralString *string `json:"literalString,omitempty"`
	Path          *string `json:"path,omitempty"`
}

// Literal returns a TextValue holding s.
func Literal(s string) TextValue { return TextValue{LiteralString: &s} }

// Bound returns a TextValue bound to a data-model path.
func Bound(path string) TextValue { return TextValue{Path: &path} }

// UnmarshalJSON also accepts a bare string as a literal.
func (v *TextValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Literal(s)
		return nil
	}
	type plain TextValue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = TextValue(p)
	return nil
}

// String returns the literal, or the path prefixed with $.
func (v TextValue) String() string {
	switch {
	case v.LiteralString != nil:
		return *v.LiteralString
	case v.Path != nil:
		return "$" + *v.Path
	}
	return ""
}

// Children lists child IDs explicitly or through a data-bound template.
type Children struct {
	ExplicitList []string  `json:"explicitList,omitempty"`
	Template     *Template `json:"template,omitempty"`
}

// Template repeats ComponentID once per item at DataBinding.
type Template struct {
	ComponentID string `json:"componentId"`
	DataBinding string `json:"dataBinding"`
}

// IDs returns the explicit list, or the template's component ID.
func (c Children) IDs() []string {
	if c.Template != nil {
		return []string{c.Template.ComponentID}
	}
	return c.ExplicitList
}

// MarshalJSON emits an empty explicitList rather than {} when there are
// no children.
func (c Children) MarshalJSON() ([]byte, error) {
	if c.Template != nil {
		return json.Marshal(struct {
			Template *Template `json:"template"`
		}{c.Template})
	}
	list := c.ExplicitList
	if list == nil {
		list = []string{}
	}
	return json.Marshal(struct {
		ExplicitList []string `json:"explicitList"`
	}{list})
}

// UnmarshalJSON also accepts a bare array of IDs.
func (c *Children) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		*c = Children{ExplicitList: ids}
		return nil
	}
	type plain Children
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Children(p)
	return nil
}

// Action is dispatched by interactive components.
type Action struct {
	Name    string          `json:"name"`
	Context []ActionContext `json:"context,omitempty"`
}

// ActionContext is one key/value passed along with an action.
type ActionContext struct {
	Key   string      `json:"key"`
	Value ActionValue `json:"value"`
}

// ActionValue holds exactly one of a path or a literal.
type ActionValue struct {
	Path           *string  `json:"path,omitempty"`
	LiteralString  *string  `json:"literalString,omitempty"`
	LiteralNumber  *float64 `json:"literalNumber,omitempty"`
	LiteralBoolean *bool    `json:"literalBoolean,omitempty"`
}

// UnmarshalJSON also accepts a bare string, number, or boolean literal.
func (v *ActionValue) UnmarshalJSON(data []byte) error {
	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	switch x := scalar.(type) {
	case string:
		*v = ActionValue{LiteralString: &x}
		return nil
	case float64:
		*v = ActionValue{LiteralNumber: &x}
		return nil
	case bool:
		*v = ActionValue{LiteralBoolean: &x}
		return nil
	}
	type plain ActionValue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = ActionValue(p)
	return nil
}

// Resolve returns the literal, or the value at Path in data.
func (v ActionValue) Resolve(data map[string]any) any {
	switch {
	case v.LiteralString != nil:
		return *v.LiteralString
	case v.LiteralNumber != nil:
		return *v.LiteralNumber
	case v.LiteralBoolean != nil:
		return *v.LiteralBoolean
	case v.Path != nil:
		val, _ := Lookup(data, *v.Path)
		return val
	}
	return nil
}
