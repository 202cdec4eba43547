package a2ui

// Deep copies for component trees. The surface store keeps its own
// copies so callers can hold and edit messages and snapshots freely.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (c Component) clone() Component {
	c.Weight = clonePtr(c.Weight)
	c.Component = c.Component.clone()
	return c
}

func cloneComponents(comps []Component) []Component {
	if comps == nil {
		return nil
	}
	out := make([]Component, len(comps))
	for i, c := range comps {
		out[i] = c.clone()
	}
	return out
}

func (s ComponentSpec) clone() ComponentSpec {
	var out ComponentSpec
	switch {
	case s.Text != nil:
		t := *s.Text
		t.Text = t.Text.clone()
		out.Text = &t
	case s.Button != nil:
		b := *s.Button
		b.Primary = clonePtr(b.Primary)
		b.Secondary = clonePtr(b.Secondary)
		b.Action = b.Action.clone()
		out.Button = &b
	case s.Row != nil:
		r := *s.Row
		r.Children = r.Children.clone()
		out.Row = &r
	case s.Column != nil:
		c := *s.Column
		c.Children = c.Children.clone()
		out.Column = &c
	case s.List != nil:
		l := *s.List
		l.Children = l.Children.clone()
		out.List = &l
	case s.Card != nil:
		out.Card = clonePtr(s.Card)
	case s.TextField != nil:
		f := *s.TextField
		f.Label = f.Label.clone()
		if f.Value != nil {
			v := f.Value.clone()
			f.Value = &v
		}
		f.Action = f.Action.clone()
		out.TextField = &f
	case s.Tabs != nil:
		t := *s.Tabs
		if t.TabItems != nil {
			t.TabItems = make([]TabItem, len(s.Tabs.TabItems))
			for i, it := range s.Tabs.TabItems {
				it.Title = it.Title.clone()
				t.TabItems[i] = it
			}
		}
		out.Tabs = &t
	case s.Icon != nil:
		ic := *s.Icon
		if ic.Name != nil {
			n := ic.Name.clone()
			ic.Name = &n
		}
		out.Icon = &ic
	case s.Divider != nil:
		out.Divider = clonePtr(s.Divider)
	case s.Image != nil:
		im := *s.Image
		im.URL = im.URL.clone()
		out.Image = &im
	}
	return out
}

func (v TextValue) clone() TextValue {
	return TextValue{LiteralString: clonePtr(v.LiteralString), Path: clonePtr(v.Path)}
}

func (c Children) clone() Children {
	out := Children{Template: clonePtr(c.Template)}
	if c.ExplicitList != nil {
		out.ExplicitList = append([]string{}, c.ExplicitList...)
	}
	return out
}

func (a *Action) clone() *Action {
	if a == nil {
		return nil
	}
	out := &Action{Name: a.Name}
	if a.Context != nil {
		out.Context = make([]ActionContext, len(a.Context))
		for i, c := range a.Context {
			out.Context[i] = ActionContext{Key: c.Key, Value: ActionValue{
				Path:           clonePtr(c.Value.Path),
				LiteralString:  clonePtr(c.Value.LiteralString),
				LiteralNumber:  clonePtr(c.Value.LiteralNumber),
				LiteralBoolean: clonePtr(c.Value.LiteralBoolean),
			}}
		}
	}
	return out
}
