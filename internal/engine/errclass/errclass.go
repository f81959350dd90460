// Package errclass maps heterogeneous failure signals (HTTP status codes,
// transport errors, process exit codes, stderr text) onto a small stable
// taxonomy used by the retry engine.
package errclass

import (
	"errors"
	"net"
	"strings"
)

// Category identifies one class of external-call failure.
type Category string

const (
	Timeout           Category = "timeout"
	ConnectionError   Category = "connection_error"
	ServerError       Category = "server_error"
	RateLimited       Category = "rate_limited"
	BadRequest        Category = "bad_request"
	AuthError         Category = "auth_error"
	OutOfMemory       Category = "out_of_memory"
	MissingExecutable Category = "missing_executable"
	FileNotFound      Category = "file_not_found"
	DiskFull          Category = "disk_full"
	PermissionDenied  Category = "permission_denied"
	CodecMissing      Category = "codec_missing"
	ResourceBusy      Category = "resource_busy"
	BrokenPipe        Category = "broken_pipe"
	IOError           Category = "io_error"
	Unknown           Category = "unknown"
)

// Class is the classification result: the category plus its fixed
// remediation hint and default retryability.
type Class struct {
	Category  Category
	Hint      string
	Retryable bool
}

// classes holds the fixed per-category hint and retryability. Hints are
// written for operators diagnosing a failed run from the event log.
var classes = map[Category]Class{
	Timeout:           {Timeout, "check network connectivity or raise the call timeout", true},
	ConnectionError:   {ConnectionError, "verify the generation backend is running and the URL is correct", true},
	ServerError:       {ServerError, "inspect the backend service logs or restart the service", true},
	RateLimited:       {RateLimited, "lower concurrency or increase the cooldown between jobs", true},
	BadRequest:        {BadRequest, "validate the prompt and request parameters against the backend API", false},
	AuthError:         {AuthError, "check the backend token or auth configuration", false},
	OutOfMemory:       {OutOfMemory, "reduce resolution or batch size to fit GPU memory", false},
	MissingExecutable: {MissingExecutable, "install ffmpeg and make sure it is on PATH", false},
	FileNotFound:      {FileNotFound, "check that input and output paths exist", false},
	DiskFull:          {DiskFull, "free up disk space or change the output directory", false},
	PermissionDenied:  {PermissionDenied, "check permissions on the output directory and files", false},
	CodecMissing:      {CodecMissing, "install the required codec or change encoding parameters", false},
	ResourceBusy:      {ResourceBusy, "make sure the output file is not in use, then retry", true},
	BrokenPipe:        {BrokenPipe, "check whether the upstream stream or pipe was interrupted", true},
	IOError:           {IOError, "check disk health or move the output to another volume", true},
	Unknown:           {Unknown, "inspect the raw error and stderr in the event log", false},
}

// Lookup returns the fixed Class for a category. Unrecognized categories
// resolve to Unknown.
func Lookup(cat Category) Class {
	if c, ok := classes[cat]; ok {
		return c
	}
	return classes[Unknown]
}

// StatusCoder is implemented by errors that carry an HTTP status code,
// such as backend.StatusError.
type StatusCoder interface {
	StatusCode() int
}

// ClassifyBackend classifies a failed generation-backend call. Rules are
// evaluated in a fixed order; the first match wins. It never panics and
// never fails: anything unrecognized is Unknown.
func ClassifyBackend(err error) Class {
	if err == nil {
		return Lookup(Unknown)
	}
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Lookup(Timeout)
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return Lookup(Timeout)
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "eof") {
		return Lookup(ConnectionError)
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		switch {
		case status >= 500:
			return Lookup(ServerError)
		case status == 429:
			return Lookup(RateLimited)
		case status == 401:
			return Lookup(AuthError)
		case status >= 400:
			return Lookup(BadRequest)
		}
	}

	if strings.Contains(msg, "cuda") || strings.Contains(msg, "out of memory") {
		return Lookup(OutOfMemory)
	}
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") {
		return Lookup(AuthError)
	}
	return Lookup(Unknown)
}

// processRule pairs a stderr substring predicate with a category.
type processRule struct {
	match    func(msg string) bool
	category Category
}

func containsAny(subs ...string) func(string) bool {
	return func(msg string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// processRules is evaluated top to bottom. The order is part of the
// contract: stderr frequently matches several substrings at once and the
// result must be deterministic.
var processRules = []processRule{
	{containsAny("command not found", "executable file not found"), MissingExecutable},
	{containsAny("no such file or directory", "unable to open"), FileNotFound},
	{containsAny("no space left", "disk full"), DiskFull},
	{containsAny("permission denied"), PermissionDenied},
	{containsAny("codec not found", "unknown encoder"), CodecMissing},
	{containsAny("device or resource busy", "resource temporarily unavailable"), ResourceBusy},
	{containsAny("broken pipe", "epipe"), BrokenPipe},
	{containsAny("timed out", "timeout"), Timeout},
	{containsAny("input/output error"), IOError},
}

// ClassifyProcess classifies a failed media-processing invocation from
// its stderr text and exit code. Exit code 127 is the shell's "command
// not found" and wins over stderr matching.
func ClassifyProcess(stderr string, exitCode int) Class {
	if exitCode == 127 {
		return Lookup(MissingExecutable)
	}
	msg := strings.ToLower(stderr)
	for _, rule := range processRules {
		if rule.match(msg) {
			return Lookup(rule.category)
		}
	}
	return Lookup(Unknown)
}
