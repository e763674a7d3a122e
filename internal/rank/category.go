package rank

import "fmt"

// Category is a fixed usage bucket with its own independently ranked list.
// Values are used as array indexes; the set is closed.
type Category int

const (
	CategoryCorrespondent Category = iota
	CategoryBotPM
	CategoryBotInline
	CategoryGroup
	CategoryChannel
	CategoryCall

	numCategories int = iota
)

var categoryNames = [numCategories]string{
	CategoryCorrespondent: "correspondent",
	CategoryBotPM:         "bot_pm",
	CategoryBotInline:     "bot_inline",
	CategoryGroup:         "group",
	CategoryChannel:       "channel",
	CategoryCall:          "call",
}

// Name returns the stable name used in storage keys and on the wire.
func (c Category) Name() string {
	if !c.valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) String() string { return c.Name() }

func (c Category) valid() bool {
	return c >= 0 && int(c) < numCategories
}

// ParseCategory resolves a stable category name back to its Category.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Categories returns all categories in index order.
func Categories() []Category {
	cats := make([]Category, numCategories)
	for i := range cats {
		cats[i] = Category(i)
	}
	return cats
}
