// Package safety implements the fail-closed gate that voids a remediation
// plan when any of its commands looks destructive.
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dshills/incidentreasoner/internal/schema"
)

// UnsafeTitle is the title of the info request appended for each unsafe command.
const UnsafeTitle = "Unsafe command detected"

// Pattern names reported by Match.
const (
	PatternRecursiveDelete = "recursive force delete"
	PatternFilesystemWipe  = "filesystem wipe"
	PatternBlockDevice     = "raw block device write"
	PatternFormat          = "filesystem format"
	PatternForkBomb        = "fork bomb"
)

type rule struct {
	name string
	re   *regexp.Regexp
}

// rules are matched against the lowercased command.
var rules = []rule{
	{PatternFilesystemWipe, regexp.MustCompile(`\b(shred|wipefs|blkdiscard)\b`)},
	{PatternFilesystemWipe, regexp.MustCompile(`\bsgdisk\b.*(--zap-all|\s-z\b)`)},
	{PatternBlockDevice, regexp.MustCompile(`\bdd\b[^;&|]*\bof=/dev/`)},
	{PatternBlockDevice, regexp.MustCompile(`>\s*/dev/(sd|hd|vd|xvd|nvme|mmcblk|disk)`)},
	{PatternFormat, regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`)},
	{PatternFormat, regexp.MustCompile(`\bmke2fs\b`)},
	{PatternFormat, regexp.MustCompile(`\bmkswap\s+/dev/`)},
	{PatternForkBomb, regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*[&;]\s*\}\s*;\s*:`)},
}

// segmentSep splits a command line into simple commands.
var segmentSep = regexp.MustCompile(`&&|\|\||[;|\n&]`)

// Match reports whether command matches a destructive pattern and, if so,
// which one. Matching is case-insensitive.
func Match(command string) (string, bool) {
	c := strings.ToLower(command)
	if strings.TrimSpace(c) == "" {
		return "", false
	}
	if isRecursiveForceDelete(c) {
		return PatternRecursiveDelete, true
	}
	for _, r := range rules {
		if r.re.MatchString(c) {
			return r.name, true
		}
	}
	return "", false
}

// isWordBreak separates shell words. Quotes and substitution syntax break
// words too, so an rm wrapped in sh -c "...", ssh host '...' or $(...) is
// still seen as a command.
func isWordBreak(r rune) bool {
	switch r {
	case '"', '\'', '`', '$', '(', ')', '{', '}':
		return true
	}
	return unicode.IsSpace(r)
}

// isRecursiveForceDelete finds an rm invocation carrying both a recursive and
// a force flag, in any spelling or order. Flags after operands count too.
func isRecursiveForceDelete(c string) bool {
	for _, seg := range segmentSep.Split(c, -1) {
		fields := strings.FieldsFunc(seg, isWordBreak)
		for i, f := range fields {
			if f != "rm" && !strings.HasSuffix(f, "/rm") {
				continue
			}
			var recursive, force bool
			for _, arg := range fields[i+1:] {
				switch {
				case arg == "--":
				case arg == "--recursive":
					recursive = true
				case arg == "--force":
					force = true
				case strings.HasPrefix(arg, "--"):
				case strings.HasPrefix(arg, "-"):
					recursive = recursive || strings.ContainsRune(arg, 'r')
					force = force || strings.ContainsRune(arg, 'f')
				}
			}
			if recursive && force {
				return true
			}
		}
	}
	return false
}

// Check applies the gate to p and returns a new plan; p is not modified.
//
// If any plan step carries a destructive command the whole plan is
// downgraded: status becomes need_more_info, every step is removed and one
// info request per offending command is appended. Info requests whose own
// command is destructive are replaced by the same notice. A plan that already
// says need_more_info never carries executable steps.
func Check(p schema.StructuredPlan) schema.StructuredPlan {
	out := p.Clone()

	var notices []schema.InfoRequest
	for _, step := range out.PlanSteps {
		if name, ok := Match(step.Command); ok {
			notices = append(notices, unsafeNotice(step.Command, name))
		}
	}
	for i, ir := range out.InfoRequests {
		if name, ok := Match(ir.Command); ok {
			out.InfoRequests[i] = unsafeNotice(ir.Command, name)
		}
	}

	if len(notices) > 0 {
		out.Status = schema.StatusNeedMoreInfo
		out.InfoRequests = append(out.InfoRequests, notices...)
	}
	if out.Status == schema.StatusNeedMoreInfo {
		out.PlanSteps = []schema.PlanStep{}
	}
	return out
}

// Downgraded reports whether Check removed executable steps from before.
func Downgraded(before, after schema.StructuredPlan) bool {
	return len(before.PlanSteps) > 0 && len(after.PlanSteps) == 0
}

func unsafeNotice(command, pattern string) schema.InfoRequest {
	return schema.InfoRequest{
		Title:   UnsafeTitle,
		Command: "N/A",
		Rationale: fmt.Sprintf("Generated command looks unsafe (%s): %s. "+
			"Please review it manually and provide safer constraints.", pattern, command),
	}
}
