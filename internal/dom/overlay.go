package dom

// Attributes carried by overlay nodes.
const (
	AttrButton    = "data-snapseek-button"
	AttrButtonFor = "data-snapseek-for"
	AttrFormat    = "data-format"
	AttrState     = "data-state"
	AttrDisabled  = "disabled"
	AttrWrap      = "data-snapseek-wrap"
	ButtonClass   = "snapseek-btn"
	WrapClass     = "snapseek-wrap"
)

// ButtonSpec describes one affordance button.
type ButtonSpec struct {
	ID     string
	Format string
	Label  string
}

// Mount describes how buttons are attached to an image. Token is written to
// the image's processed marker and to each button, linking them without the
// caller holding node keys.
type Mount struct {
	Token   string
	Wrap    bool
	Buttons []ButtonSpec
}

// ButtonView is the rendered state of one button.
type ButtonView struct {
	State    string
	Disabled bool
}
