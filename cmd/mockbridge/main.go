// Command mockbridge is a stand-in for the external generation and storage
// backend. It follows the bridge process contract:
//
//	mockbridge [flags] <operation> <request-json>
//
// and prints exactly one JSON object on stdout. Logs go to stderr.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const mockModel = "mock-generation-model"

var (
	generationTemplates = []string{
		"Here is content about '%[1]s':\n\n%[1]s touches on privacy and trust in modern software. " +
			"Confidential computation lets applications work with sensitive data while keeping it encrypted, " +
			"which matters for finance, voting and AI assistants alike.\n\n" +
			"Pairing private storage with decentralized AI means models can serve users without collecting their data in the clear.",
		"Analysis of %[1]s:\n\nPrivacy-preserving platforms keep data encrypted even while it is processed. " +
			"For AI workloads that brings several advantages:\n\n" +
			"1. Models can use sensitive inputs without exposing them\n" +
			"2. Data owners can share data without giving it away\n" +
			"3. Systems can be audited while proprietary logic stays private\n\n" +
			"Together these address many of the privacy concerns around current AI deployments.",
	}
	enhancementTemplates = []string{
		"This is the enhanced version with %[1]s improvements:\n\n%[2]s\n\n" +
			"The above text has been refined to better communicate the core message while maintaining the original intent.",
		"After applying %[1]s enhancements:\n\n%[2]s\n\n" +
			"This improved version addresses the key requirements while ensuring clarity and effectiveness.",
	}
)

type options struct {
	minDelay time.Duration
	maxDelay time.Duration
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("app", "mockbridge").Logger()

	var opts options
	flags := pflag.NewFlagSet("mockbridge", pflag.ContinueOnError)
	flags.DurationVar(&opts.minDelay, "min-delay", 0, "minimum simulated processing time")
	flags.DurationVar(&opts.maxDelay, "max-delay", 0, "maximum simulated processing time")
	if err := flags.Parse(os.Args[1:]); err != nil {
		writeReply(map[string]interface{}{"error": err.Error()})
		os.Exit(2)
	}

	args := flags.Args()
	if len(args) < 2 {
		writeReply(map[string]interface{}{"error": "usage: mockbridge [flags] <operation> <request-json>"})
		os.Exit(2)
	}

	logger.Info().Str("op", args[0]).Msg("processing action")
	writeReply(respond(args[0], args[1], opts.sleep))
}

func writeReply(reply map[string]interface{}) {
	_ = json.NewEncoder(os.Stdout).Encode(reply)
}

// sleep simulates processing time and returns it in seconds.
func (o options) sleep() float64 {
	d := o.minDelay
	if o.maxDelay > o.minDelay {
		d += time.Duration(rand.Int63n(int64(o.maxDelay - o.minDelay)))
	}
	time.Sleep(d)
	return d.Seconds()
}

// respond builds the reply object for one call.
func respond(op, rawRequest string, delay func() float64) map[string]interface{} {
	var req map[string]interface{}
	if err := json.Unmarshal([]byte(rawRequest), &req); err != nil {
		return map[string]interface{}{"error": fmt.Sprintf("invalid request: %v", err)}
	}

	switch op {
	case "generate":
		prompt := stringField(req, "prompt", "")
		content := fmt.Sprintf(pick(generationTemplates), prompt)
		return generated(prompt, content, delay())

	case "enhance":
		text := stringField(req, "draft_text", "")
		kind := stringField(req, "enhancement_type", "grammar")
		content := fmt.Sprintf(pick(enhancementTemplates), kind, text)
		return generated(text, content, delay())

	case "store", "retrieve":
		return map[string]interface{}{"success": true, "mock": true}

	default:
		return map[string]interface{}{"error": "Unknown action: " + op}
	}
}

func generated(input, content string, took float64) map[string]interface{} {
	return map[string]interface{}{
		"content": content,
		"metadata": map[string]interface{}{
			"timestamp":        time.Now().Unix(),
			"prompt_length":    len(input),
			"response_length":  len(content),
			"processing_time":  took,
			"estimated_tokens": 300 + rand.Intn(301),
			"model":            mockModel,
			"content_type":     "text",
			"mock_generation":  true,
		},
	}
}

func pick(templates []string) string {
	return templates[rand.Intn(len(templates))]
}

func stringField(req map[string]interface{}, key, fallback string) string {
	if v, ok := req[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
