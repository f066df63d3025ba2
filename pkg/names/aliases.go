package names

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Alias maps spelling variants onto one canonical name.
type Alias struct {
	Canonical string   `yaml:"canonical" json:"canonical"`
	Variants  []string `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// DepartmentAliases lists the 33 first-level divisions with the variants seen
// across census years. Accent-less spellings need no entry: the canonical
// name is registered under its folded form.
var DepartmentAliases = []Alias{
	{Canonical: "Amazonas"},
	{Canonical: "Antioquia"},
	{Canonical: "Arauca"},
	{Canonical: "Atlántico"},
	{Canonical: "Bogotá", Variants: []string{
		"Bogotá D.C.", "Bogotá, D.C.", "Bogotá Distrito Capital",
		"Santafé de Bogotá", "Santafé de Bogotá D.C.",
	}},
	{Canonical: "Bolívar"},
	{Canonical: "Boyacá"},
	{Canonical: "Caldas"},
	{Canonical: "Caquetá"},
	{Canonical: "Casanare"},
	{Canonical: "Cauca"},
	{Canonical: "Cesar"},
	{Canonical: "Chocó"},
	{Canonical: "Córdoba"},
	{Canonical: "Cundinamarca"},
	{Canonical: "Guainía"},
	{Canonical: "Guaviare"},
	{Canonical: "Huila"},
	{Canonical: "La Guajira", Variants: []string{"Guajira"}},
	{Canonical: "Magdalena"},
	{Canonical: "Meta"},
	{Canonical: "Nariño"},
	{Canonical: "Norte de Santander", Variants: []string{"N. de Santander", "Norte Santander"}},
	{Canonical: "Putumayo"},
	{Canonical: "Quindío"},
	{Canonical: "Risaralda"},
	{Canonical: "San Andrés y Providencia", Variants: []string{
		"Archipiélago de San Andrés",
		"Archipiélago de San Andrés, Providencia y Santa Catalina",
		"San Andrés, Providencia y Santa Catalina",
		"San Andrés",
	}},
	{Canonical: "Santander"},
	{Canonical: "Sucre"},
	{Canonical: "Tolima"},
	{Canonical: "Valle del Cauca", Variants: []string{"Valle"}},
	{Canonical: "Vaupés"},
	{Canonical: "Vichada"},
}

// MunicipalityAliases covers the capital district, which the municipal
// columns spell the same inconsistent ways as the department column.
var MunicipalityAliases = []Alias{
	{Canonical: "Bogotá", Variants: []string{
		"Bogotá D.C.", "Bogotá, D.C.", "Bogotá Distrito Capital",
	}},
}

// AliasFile is the YAML layout for site-specific alias additions.
type AliasFile struct {
	Departments    []Alias `yaml:"departments"`
	Municipalities []Alias `yaml:"municipalities"`
}

// LoadAliasFile reads and parses an alias YAML file.
func LoadAliasFile(path string) (*AliasFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases %s: %w", path, err)
	}
	var f AliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse aliases %s: %w", path, err)
	}
	return &f, nil
}

// Extend returns a Set whose normalizers consult the file's aliases before the
// built-in table. Every canonical name in the file must be a fixed point of
// the receiver, otherwise names produced at ingestion would regroup
// differently once the built-in table sees them again.
func (s Set) Extend(f *AliasFile) (Set, error) {
	if f == nil {
		return s, nil
	}
	dept, err := extend(s.Department, f.Departments)
	if err != nil {
		return Set{}, fmt.Errorf("department aliases: %w", err)
	}
	muni, err := extend(s.Municipality, f.Municipalities)
	if err != nil {
		return Set{}, fmt.Errorf("municipality aliases: %w", err)
	}
	return Set{Department: dept, Municipality: muni}, nil
}

func extend(base *Normalizer, extra []Alias) (*Normalizer, error) {
	if len(extra) == 0 {
		return base, nil
	}
	n := &Normalizer{
		sentinel: base.sentinel,
		aliases:  make(map[string]string, len(base.aliases)+len(extra)),
	}
	for k, v := range base.aliases {
		n.aliases[k] = v
	}
	for _, a := range extra {
		canonical := TitleCase(a.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("alias with empty canonical name (variants %v)", a.Variants)
		}
		if got := base.Normalize(canonical); got != canonical {
			return nil, fmt.Errorf("canonical %q is rewritten to %q by the built-in table", canonical, got)
		}
		for _, v := range a.Variants {
			if k := Fold(v); k != "" {
				n.aliases[k] = canonical
			}
		}
	}
	return n, nil
}
