// Command refcheck posts a batch of dataset references to a running API
// instance and reports the per-reference diagnostics. Intended for smoke
// checks against a freshly migrated registry: exit code 1 when any critical
// reference fails.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type reference struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Version  string `json:"version"`
	URI      string `json:"uri,omitempty"`
	Critical bool   `json:"critical"`
}

type config struct {
	References []reference `json:"references"`
}

type checkResult struct {
	ID                 string `json:"id"`
	Version            string `json:"version"`
	RuleVerification   bool   `json:"ruleVerification"`
	NonExistent        bool   `json:"nonExistent"`
	VersionUnderReview bool   `json:"versionUnderReview"`
	VersionSuperseded  bool   `json:"versionSuperseded"`
}

type envelope struct {
	Data struct {
		Results   []checkResult `json:"results"`
		Cancelled bool          `json:"cancelled"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		base      string
		refsPath  string
		authToken string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&refsPath, "refs", filepath.Join("scripts", "refcheck", "references.json"), "Path to JSON references file")
	flag.StringVar(&authToken, "token", "", "Optional bearer token")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	refs, err := loadReferences(refsPath)
	if err != nil {
		log.Fatalf("failed to load references: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	env, err := check(client, base, authToken, refs)
	if err != nil {
		log.Fatalf("check request failed: %v", err)
	}
	if env.Error != nil {
		log.Fatalf("check rejected: %s (%s)", env.Error.Message, env.Error.Code)
	}

	breaking, optional := printReport(refs, env)
	fmt.Printf("Breaking: %d, Optional: %d\n", breaking, optional)
	if env.Data.Cancelled {
		fmt.Println("warning: check was cancelled before covering all references")
	}
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadReferences(path string) ([]reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.References) == 0 {
		return nil, fmt.Errorf("no references defined in %s", path)
	}
	return cfg.References, nil
}

func check(client *http.Client, base, token string, refs []reference) (*envelope, error) {
	type wireRef struct {
		Type    string `json:"type"`
		ID      string `json:"id"`
		Version string `json:"version"`
		URI     string `json:"uri,omitempty"`
	}
	payload := struct {
		References []wireRef `json:"references"`
	}{}
	for _, r := range refs {
		payload.References = append(payload.References, wireRef{Type: r.Type, ID: r.ID, Version: r.Version, URI: r.URI})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(base, "/") + "/api/v1/references/check"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return &env, nil
}

func printReport(refs []reference, env *envelope) (breaking, optional int) {
	critical := make(map[string]bool, len(refs))
	for _, r := range refs {
		critical[r.ID+"@"+r.Version] = r.Critical
	}

	fmt.Printf("%-38s %-10s %-6s %-6s %-8s %-10s\n", "ID", "VERSION", "EXISTS", "FIELDS", "REVIEW", "SUPERSEDED")
	for _, res := range env.Data.Results {
		exists := "yes"
		if res.NonExistent {
			exists = "NO"
		}
		fields := "ok"
		if !res.RuleVerification {
			fields = "FAIL"
		}
		review := "-"
		if res.VersionUnderReview {
			review = "other"
		}
		superseded := "-"
		if res.VersionSuperseded {
			superseded = "yes"
		}
		fmt.Printf("%-38s %-10s %-6s %-6s %-8s %-10s\n", res.ID, res.Version, exists, fields, review, superseded)

		if res.NonExistent || !res.RuleVerification {
			if critical[res.ID+"@"+res.Version] {
				breaking++
			} else {
				optional++
			}
		}
	}
	return breaking, optional
}
