package orchestrator

import (
	"regexp"
	"strings"

	"github.com/taskloom/taskloom/internal/task"
)

// fencedBlockRe captures the info string and body of a fenced code block.
var fencedBlockRe = regexp.MustCompile("(?ms)^```([^\n`]*)\n(.*?)^```\\s*$")

// ExtractArtifacts pulls named sub-artifacts out of a worker's answer.
// Only fenced blocks whose info string looks like a file name become
// artifacts; blocks tagged with language markers ("go", "bash",
// "markdown") or left bare are ordinary prose formatting and are ignored.
func ExtractArtifacts(content string) []task.Artifact {
	var artifacts []task.Artifact
	for _, m := range fencedBlockRe.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if !looksLikeFileName(name) {
			continue
		}
		artifacts = append(artifacts, task.Artifact{
			Name:    name,
			Content: m[2],
		})
	}
	return artifacts
}

// looksLikeFileName reports whether a fence info string names a file: it
// must contain a dot or path separator and no spaces. "cache.go" and
// "src/main.py" qualify; "go", "bash", "mermaid diagram" do not.
func looksLikeFileName(info string) bool {
	if info == "" || strings.ContainsAny(info, " \t") {
		return false
	}
	return strings.ContainsAny(info, "./\\")
}
