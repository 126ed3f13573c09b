package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nikbrunner/gmark/internal/model"
)

//go:embed categories.yml
var defaultCategoriesYAML []byte

const defaultColor = "#6b7280"

// Category is one classification target.
type Category struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Color       string   `yaml:"color"`
	Patterns    []string `yaml:"patterns"`
	Tags        []string `yaml:"tags"` // keyword tags added when found in the text
}

// Categories is an ordered category set.
type Categories []Category

type categoriesFile struct {
	Categories Categories `yaml:"categories"`
}

// DefaultCategories returns the built-in category set.
func DefaultCategories() Categories {
	cats, err := ParseCategories(defaultCategoriesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded categories.yml: %v", err))
	}
	return cats
}

// ParseCategories decodes a category file. Names must be unique and the set
// must contain the catch-all "Other".
func ParseCategories(data []byte) (Categories, error) {
	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("parse categories: no categories defined")
	}

	seen := make(map[string]bool, len(f.Categories))
	for i, c := range f.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("parse categories: entry %d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("parse categories: duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if c.Color == "" {
			f.Categories[i].Color = defaultColor
		}
	}
	if !seen[model.CategoryOther] {
		return nil, fmt.Errorf("parse categories: %q category is required", model.CategoryOther)
	}
	return f.Categories, nil
}

// LoadCategories reads a user category file, falling back to the built-in
// set when path is empty or the file does not exist.
func LoadCategories(path string) (Categories, error) {
	if path == "" {
		return DefaultCategories(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCategories(), nil
	}
	if err != nil {
		return nil, err
	}
	return ParseCategories(data)
}

// Names returns the category names in order.
func (cs Categories) Names() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Find returns the named category.
func (cs Categories) Find(name string) (Category, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Color returns the display color of a category.
func (cs Categories) Color(name string) string {
	if c, ok := cs.Find(name); ok {
		return c.Color
	}
	return defaultColor
}
