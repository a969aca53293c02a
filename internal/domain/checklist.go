package domain

type ChecklistItem struct {
	Code          string `json:"code" yaml:"code"`
	Description   string `json:"description" yaml:"description"`
	PlatformID    string `json:"platform_id" yaml:"-"`
	Required      bool   `json:"required" yaml:"required"`
	RequiresPhoto bool   `json:"requires_photo" yaml:"requires_photo"`
}

type Platform struct {
	ID    string
	Name  string
	Items []ChecklistItem
}

func (p Platform) Item(code string) (ChecklistItem, bool) {
	for _, item := range p.Items {
		if item.Code == code {
			return item, true
		}
	}
	return ChecklistItem{}, false
}

func (p Platform) RequiredItems() []ChecklistItem {
	out := make([]ChecklistItem, 0, len(p.Items))
	for _, item := range p.Items {
		if item.Required {
			out = append(out, item)
		}
	}
	return out
}

// Catalog is the platform/checklist reference data.
type Catalog interface {
	Platform(id string) (Platform, bool)
	Platforms() []Platform
}
