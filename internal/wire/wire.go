// Package wire implements the line-delimited ASCII protocol spoken between
// the coordinator and its workers: tokenizing and dispatching inbound
// lines, and formatting the outbound command lines in internal/server/
// bot.go's vocabulary but for plain TCP text instead of msgpack frames.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Inbound verbs a worker can send.
const (
	VerbInfo             = "Info"
	VerbSelfPlay         = "SelfPlay"
	VerbOptimizationDone = "Optimization_Done"
)

// Outbound lines the coordinator sends.
const (
	LineResetActors = "reset_actors"
	LineStart       = "start"
	LineStop        = "stop"
	LineKeepAlive   = "keep_alive"
	LineQuit        = "quit"
)

// Tokens splits a line on whitespace, collapsing runs of spaces.
func Tokens(line string) []string {
	return strings.Fields(line)
}

// Verb returns the first whitespace-delimited token of a line, or "" for a
// blank line.
func Verb(line string) string {
	tokens := Tokens(line)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// ParseInfo extracts the name and role from an "Info <name> <role>" line.
func ParseInfo(line string) (name, role string, ok bool) {
	tokens := Tokens(line)
	if len(tokens) != 3 || tokens[0] != VerbInfo {
		return "", "", false
	}
	return tokens[1], tokens[2], true
}

// ParseOptimizationDone extracts the new iteration from an
// "Optimization_Done <newIter>" line.
func ParseOptimizationDone(line string) (newIter int, ok bool) {
	tokens := Tokens(line)
	if len(tokens) != 2 || tokens[0] != VerbOptimizationDone {
		return 0, false
	}
	n, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsDuplicateSelfPlay reports whether a line contains more than one
// occurrence of the literal substring "SelfPlay", which indicates two
// records were concatenated by a non-atomic write on the worker side. Such
// a line must be silently ignored in full.
func IsDuplicateSelfPlay(line string) bool {
	first := strings.Index(line, VerbSelfPlay)
	if first == -1 {
		return false
	}
	return strings.Index(line[first+len(VerbSelfPlay):], VerbSelfPlay) != -1
}

// SelfPlayRecord returns the raw record text following "SelfPlay " in a
// well-formed, non-duplicate SelfPlay line.
func SelfPlayRecord(line string) (record string, ok bool) {
	tokens := Tokens(line)
	if len(tokens) < 2 || tokens[0] != VerbSelfPlay {
		return "", false
	}
	idx := strings.Index(line, VerbSelfPlay)
	return strings.TrimSpace(line[idx+len(VerbSelfPlay):]), true
}

// SplitRecord splits an accepted self-play record at its first "(": the
// prefix (trimmed) is the move count, the suffix starting at "(" is the
// sgf-like payload.
func SplitRecord(record string) (moveCount string, payload string, ok bool) {
	idx := strings.Index(record, "(")
	if idx == -1 {
		return "", "", false
	}
	return strings.TrimSpace(record[:idx]), record[idx:], true
}

// ContainsWeightIter reports whether payload carries the embedded marker
// for the given model iteration.
func ContainsWeightIter(payload string, modelIteration int) bool {
	return strings.Contains(payload, fmt.Sprintf("weight_iter_%d", modelIteration))
}

// SanitizeErrorLine replaces CR/LF with spaces so a malformed line can be
// logged on one line.
func SanitizeErrorLine(line string) string {
	line = strings.ReplaceAll(line, "\r", " ")
	line = strings.ReplaceAll(line, "\n", " ")
	return line
}

// JobSelfPlay formats the initial handshake job spec sent to a newly
// identified self-play worker.
func JobSelfPlay(trainingDir string, weightPath string, seed int64) string {
	return fmt.Sprintf("Job_SelfPlay %s nn_file_name=%s:program_auto_seed=false:program_seed=%d:program_quiet=true",
		trainingDir, weightPath, seed)
}

// JobOptimization formats the initial handshake job spec sent to a newly
// identified optimization worker.
func JobOptimization(trainingDir string) string {
	return "Job_Optimization " + trainingDir
}

// LoadModel formats the load_model command for a self-play worker.
func LoadModel(weightPath string) string {
	return "load_model " + weightPath
}

// OptimizationCommand formats the weight_iter_<n>.pkl <first> <last>
// command line dispatched to optimization workers.
func OptimizationCommand(currentModelIteration, firstIter, lastIter int) string {
	return fmt.Sprintf("weight_iter_%d.pkl %d %d", currentModelIteration, firstIter, lastIter)
}
