package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidal-downloader/tidal/internal/core"
)

// readURLsFromFile reads URLs from a file, one per line. Blank lines and
// lines starting with # are skipped.
func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Get file size for progress estimation
	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	large := fileInfo.Size() > 10*1024*1024

	var urls []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for long URLs (default is 64KB, increase to 1MB)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

	lineCount := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
		lineCount++

		if large && lineCount%10000 == 0 {
			fmt.Fprintf(os.Stderr, "\rReading batch file: %d URLs loaded...", len(urls))
		}
	}
	if large {
		fmt.Fprintf(os.Stderr, "\rReading batch file: %d URLs loaded... Done!\n", len(urls))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return urls, nil
}

func resolveHostTarget() string {
	if host := strings.TrimSpace(globalHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(hostEnv))
}

// resolveAPIConnection finds the daemon to talk to: --host / TIDAL_HOST, else
// the local instance from the port file. With requireServer unset a missing
// local instance yields empty results instead of an error.
func resolveAPIConnection(requireServer bool) (string, string, error) {
	target := resolveHostTarget()
	if target == "" {
		port := readActivePort()
		if port > 0 {
			token, err := resolveTokenForTarget("127.0.0.1")
			return fmt.Sprintf("http://127.0.0.1:%d", port), token, err
		}
		if !requireServer {
			return "", "", nil
		}
		return "", "", errors.New("tidal is not running locally. start it or pass --host (or set " + hostEnv + ")")
	}

	baseURL, err := resolveConnectBaseURL(target, false)
	if err != nil {
		return "", "", err
	}
	token, err := resolveTokenForTarget(target)
	if err != nil {
		return "", "", err
	}
	return baseURL, token, nil
}

// clientService connects to the running daemon.
func clientService() (*core.RemoteDownloadService, error) {
	baseURL, token, err := resolveAPIConnection(true)
	if err != nil {
		return nil, err
	}
	return core.NewRemoteDownloadService(baseURL, token), nil
}

// resolveDownloadID resolves a partial ID (prefix) to a full download ID
// using the tasks the service knows about.
func resolveDownloadID(service core.DownloadService, partialID string) (string, error) {
	if len(partialID) >= 36 {
		return partialID, nil // Already a full UUID
	}

	statuses, err := service.List()
	if err != nil {
		return "", fmt.Errorf("failed to list downloads: %w", err)
	}
	candidates := make([]string, 0, len(statuses))
	for _, s := range statuses {
		candidates = append(candidates, s.ID)
	}
	return resolveIDFromCandidates(partialID, candidates)
}

func resolveIDFromCandidates(partialID string, candidates []string) (string, error) {
	// Find matches among all candidates
	var matches []string
	seen := make(map[string]bool)

	for _, id := range candidates {
		if strings.HasPrefix(id, partialID) && !seen[id] {
			matches = append(matches, id)
			seen[id] = true
		}
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous ID prefix '%s' matches %d downloads", partialID, len(matches))
	}

	return partialID, nil // No match, use as-is (will fail with "not found" later)
}
