package catalog

import (
	"os"

	"bitquiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Catalog is the set of known quiz definitions. It drives the background
// content sweep and resolves quiz IDs to source URLs.
type Catalog struct {
	schools []domain.School
	quizzes []domain.QuizDefinition
	byID    map[string]domain.QuizDefinition
}

type fileFormat struct {
	Schools []domain.School         `yaml:"schools"`
	Quizzes []domain.QuizDefinition `yaml:"quizzes"`
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return New(f.Schools, f.Quizzes), nil
}

// New builds a catalog from explicit definitions.
func New(schools []domain.School, quizzes []domain.QuizDefinition) *Catalog {
	byID := make(map[string]domain.QuizDefinition, len(quizzes))
	for _, q := range quizzes {
		byID[q.ID] = q
	}
	return &Catalog{schools: schools, quizzes: quizzes, byID: byID}
}

// AssetBase is the default remote root for question sets and media.
const AssetBase = "https://raw.githubusercontent.com/xShirogane/BitQuiz-Assets/main"

// Default returns the built-in vocational qualification catalog used when no
// catalog file is configured.
func Default() *Catalog {
	return New(
		[]domain.School{
			{ID: "all", Name: "Wszystkie"},
			{ID: "ti", Name: "Tech. Informatyk"},
			{ID: "tp", Name: "Tech. Programista"},
			{ID: "tr", Name: "Tech. Reklamy"},
			{ID: "te", Name: "Tech. Elektronik"},
		},
		[]domain.QuizDefinition{
			{ID: "inf02", Title: "INF.02", FullName: "Administracja i eksploatacja systemów", SchoolID: "ti", SourceURL: AssetBase + "/inf02.json"},
			{ID: "inf03", Title: "INF.03", FullName: "Tworzenie i administrowanie stronami", SchoolID: "tp", SourceURL: AssetBase + "/inf03.json"},
			{ID: "inf04", Title: "INF.04", FullName: "Projektowanie, programowanie aplikacji", SchoolID: "tp", SourceURL: AssetBase + "/inf04.json"},
			{ID: "pgf07", Title: "PGF.07", FullName: "Wykonywanie przekazu reklamowego", SchoolID: "tr", SourceURL: AssetBase + "/pgf07.json"},
		},
	)
}

// All returns every quiz definition in catalog order.
func (c *Catalog) All() []domain.QuizDefinition {
	return c.quizzes
}

// Schools returns the school groupings.
func (c *Catalog) Schools() []domain.School {
	return c.schools
}

// Get resolves a quiz ID.
func (c *Catalog) Get(id string) (domain.QuizDefinition, error) {
	if def, ok := c.byID[id]; ok {
		return def, nil
	}
	return domain.QuizDefinition{}, domain.ErrQuizNotFound
}
