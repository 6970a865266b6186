// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"query-orchestrator/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	aliasCmd := flag.NewFlagSet("alias", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, aliasCmd, validateCmd, listCmd, initCmd} {
		fs.StringVar(&registryPath, "path", "pkg/registry/domain-registry.json", "Path to registry file")
	}

	// Add command flags
	kind := addCmd.String("kind", "", "What to add: metric, dimension or column")
	name := addCmd.String("name", "", "Field name (e.g., screenPageViews, Title 1)")
	category := addCmd.String("category", "", "Category for analytics fields (e.g., engagement)")
	colType := addCmd.String("type", registry.ColumnTypeString, "Column type for crawl columns (string or number)")
	aliases := addCmd.String("aliases", "", "Comma-separated aliases")
	description := addCmd.String("description", "", "Description")

	// Alias command flags
	aliasName := aliasCmd.String("name", "", "Existing field or column name")
	aliasValue := aliasCmd.String("alias", "", "Alias to add")

	// List command flags
	domain := listCmd.String("domain", "", "Restrict to one domain: analytics or seo")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *kind == "" || *name == "" {
			fmt.Println("Error: kind and name are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		if err := addField(*kind, *name, *category, *colType, *description, splitList(*aliases)); err != nil {
			fmt.Printf("Error adding %s: %v\n", *kind, err)
			os.Exit(1)
		}
		fmt.Printf("Added %s: %s\n", *kind, *name)

	case "alias":
		aliasCmd.Parse(os.Args[2:])
		if *aliasName == "" || *aliasValue == "" {
			fmt.Println("Error: name and alias are required for alias.")
			aliasCmd.Usage()
			os.Exit(1)
		}
		if err := addAlias(*aliasName, *aliasValue); err != nil {
			fmt.Printf("Error adding alias: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added alias %q to %s\n", *aliasValue, *aliasName)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listRegistry(*domain); err != nil {
			fmt.Printf("Error listing registry: %v\n", err)
			os.Exit(1)
		}

	case "init":
		initCmd.Parse(os.Args[2:])
		if _, err := os.Stat(registryPath); err == nil {
			fmt.Printf("Error: %s already exists\n", registryPath)
			os.Exit(1)
		}
		if err := writeFile(registryPath, registry.DefaultJSON()); err != nil {
			fmt.Printf("Error writing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote built-in registry to %s\n", registryPath)

	case "help":
		fallthrough
	default:
		help()
	}
}

func addField(kind, name, category, colType, description string, aliases []string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	switch kind {
	case "metric":
		if _, ok := reg.ResolveMetric(name); ok {
			return fmt.Errorf("metric %s already exists", name)
		}
		reg.Analytics.Metrics = append(reg.Analytics.Metrics, registry.Field{
			Name: name, Category: category, Description: description, Aliases: aliases,
		})
	case "dimension":
		if _, ok := reg.ResolveDimension(name); ok {
			return fmt.Errorf("dimension %s already exists", name)
		}
		reg.Analytics.Dimensions = append(reg.Analytics.Dimensions, registry.Field{
			Name: name, Category: category, Description: description, Aliases: aliases,
		})
	case "column":
		if _, ok := reg.ResolveColumn(name); ok {
			return fmt.Errorf("column %s already exists", name)
		}
		if colType != registry.ColumnTypeString && colType != registry.ColumnTypeNumber {
			return fmt.Errorf("column type must be %s or %s", registry.ColumnTypeString, registry.ColumnTypeNumber)
		}
		reg.SEO.Columns = append(reg.SEO.Columns, registry.Column{
			Name: name, Type: colType, Description: description, Aliases: aliases,
		})
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}

	return saveRegistry(reg, registryPath)
}

func addAlias(name, alias string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Analytics.Metrics {
		if reg.Analytics.Metrics[i].Name == name {
			reg.Analytics.Metrics[i].Aliases = append(reg.Analytics.Metrics[i].Aliases, alias)
			found = true
		}
	}
	for i := range reg.Analytics.Dimensions {
		if reg.Analytics.Dimensions[i].Name == name {
			reg.Analytics.Dimensions[i].Aliases = append(reg.Analytics.Dimensions[i].Aliases, alias)
			found = true
		}
	}
	for i := range reg.SEO.Columns {
		if reg.SEO.Columns[i].Name == name {
			reg.SEO.Columns[i].Aliases = append(reg.SEO.Columns[i].Aliases, alias)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("field %s not found", name)
	}

	return saveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	fmt.Printf("Registry validation passed. Found %d metrics, %d dimensions and %d crawl columns.\n",
		len(reg.Analytics.Metrics), len(reg.Analytics.Dimensions), len(reg.SEO.Columns))
	return nil
}

func listRegistry(domain string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if domain == "" || domain == string(registry.DomainAnalytics) {
		fmt.Println("analytics metrics:")
		for _, f := range reg.Analytics.Metrics {
			printField(f.Name, f.Category, f.Aliases)
		}
		fmt.Println("analytics dimensions:")
		for _, f := range reg.Analytics.Dimensions {
			printField(f.Name, f.Category, f.Aliases)
		}
	}
	if domain == "" || domain == string(registry.DomainSEO) {
		fmt.Printf("crawl columns (key %s):\n", reg.SEO.KeyColumn)
		for _, c := range reg.SEO.Columns {
			printField(c.Name, c.Type, c.Aliases)
		}
	}
	return nil
}

func printField(name, kind string, aliases []string) {
	line := fmt.Sprintf("  %-32s %-12s", name, kind)
	if len(aliases) > 0 {
		line += " aka " + strings.Join(aliases, ", ")
	}
	fmt.Println(line)
}

// saveRegistry re-validates the document before writing it back.
func saveRegistry(reg *registry.DomainRegistry, path string) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if _, err := registry.Parse(data); err != nil {
		return fmt.Errorf("updated registry is invalid: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a metric, dimension or crawl column
  alias    Add an alias to an existing field
  validate Validate the registry file
  list     Print the fields each domain accepts
  init     Write the built-in registry to a file for editing
  help     Show this help message

Examples:
  registry-updater add -kind metric -name conversions -category conversion -aliases "goals,conversion count"
  registry-updater add -kind column -name "Word Count" -type number -aliases "words"
  registry-updater alias -name screenPageViews -alias "hits"
  registry-updater validate -path pkg/registry/domain-registry.json
  registry-updater list -domain seo

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
