package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/ini.v1"

	"srcpkg/config"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search every configured repository's catalog for a name/description match",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

type searchResult struct {
	Name, Version, Description string
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	term := strings.ToLower(args[0])
	seen := make(map[string]bool)
	var results []searchResult

	for _, repo := range a.Config.Repositories {
		if !repo.Enabled {
			continue
		}
		matches, err := searchRepository(repo, term)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			results = append(results, m)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	for _, r := range results {
		fmt.Printf("%-24s %-12s %s\n", r.Name, r.Version, r.Description)
	}
	return nil
}

func searchRepository(repo config.Repository, term string) ([]searchResult, error) {
	pattern := filepath.Join(repo.LocalPath, "packages", "*.ini")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var results []searchResult
	for _, path := range matches {
		iniFile, err := ini.Load(path)
		if err != nil {
			continue
		}
		sec := iniFile.Section("package")
		name := sec.Key("name").String()
		description := sec.Key("description").String()
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), ".ini")
		}
		if strings.Contains(strings.ToLower(name), term) || strings.Contains(strings.ToLower(description), term) {
			results = append(results, searchResult{Name: name, Version: sec.Key("version").String(), Description: description})
		}
	}
	return results, nil
}
