package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"profile-ml/service/internal/recognition"
	"profile-ml/service/internal/scoring"
	"profile-ml/service/internal/store"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeProfileMarkdown(w io.Writer, profile scoring.CharacterProfile) error {
	md := markdown.NewMarkdown(w)
	md.H1("Character profile: " + profile.ArchetypeName)
	md.Table(markdown.TableSet{
		Header: []string{"Attribute", "Value"},
		Rows: [][]string{
			{"Archetype", profile.Archetype},
			{"Dominance", strconv.Itoa(profile.DominanceLevel)},
			{"Submission", strconv.Itoa(profile.SubmissionLevel)},
			{"Empathy", strconv.Itoa(profile.Personality.EmpathyLevel)},
			{"Communication", profile.Personality.CommunicationStyle},
			{"Risk tolerance", strconv.Itoa(profile.Personality.RiskTolerance)},
			{"Intensity", profile.Lifestyle.Intensity},
			{"Frequency", profile.Lifestyle.Frequency},
			{"Discretion", strconv.Itoa(profile.Lifestyle.DiscretionLevel)},
		},
	})
	if len(profile.Traits) > 0 {
		md.H2("Traits")
		md.BulletList(profile.Traits...)
	}
	if len(profile.Warnings) > 0 {
		md.H2("Warnings")
		md.BulletList(profile.Warnings...)
	}
	return md.Build()
}

func writeCatalogMarkdown(w io.Writer, catalog *scoring.Catalog) error {
	md := markdown.NewMarkdown(w)
	md.H1("Archetype catalog")
	md.PlainTextf("Version %s, default archetype `%s`.", catalog.Version(), catalog.DefaultKey())

	rows := make([][]string, 0, len(catalog.Archetypes()))
	for _, a := range catalog.Archetypes() {
		rows = append(rows, []string{
			a.Key,
			a.Name,
			strconv.Itoa(a.DominanceLevel),
			strconv.Itoa(a.SubmissionLevel),
			strings.Join(a.Traits, ", "),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Key", "Name", "Dominance", "Submission", "Traits"},
		Rows:   rows,
	})
	return md.Build()
}

func writeRecognitionMarkdown(w io.Writer, name, detector string, result recognition.Result) error {
	md := markdown.NewMarkdown(w)
	md.H1("Recognition: " + name)
	md.PlainTextf("Detector `%s`, NSFW: %t.", detector, result.IsNSFW)

	md.H2("Detected objects")
	if len(result.DetectedObjects) == 0 {
		md.PlainText("No objects above the confidence threshold.")
	} else {
		rows := make([][]string, 0, len(result.DetectedObjects))
		for _, obj := range result.DetectedObjects {
			rows = append(rows, []string{obj.Object, formatConfidence(obj.Confidence), formatBBox(obj.BBox)})
		}
		md.Table(markdown.TableSet{Header: []string{"Object", "Confidence", "Box"}, Rows: rows})
	}

	md.H2("Suggested tags")
	if len(result.SuggestedTags) == 0 {
		md.PlainText("No taxonomy matches.")
	} else {
		rows := make([][]string, 0, len(result.SuggestedTags))
		for _, tag := range result.SuggestedTags {
			rows = append(rows, []string{tag.TagID, tag.Object, formatConfidence(tag.Confidence)})
		}
		md.Table(markdown.TableSet{Header: []string{"Tag", "Object", "Confidence"}, Rows: rows})
	}
	return md.Build()
}

func writeValidationMarkdown(w io.Writer, name string, result recognition.ValidationResult) error {
	md := markdown.NewMarkdown(w)
	md.H1("Validation: " + name)
	md.Table(markdown.TableSet{
		Header: []string{"Check", "Value"},
		Rows: [][]string{
			{"Valid", strconv.FormatBool(result.IsValid)},
			{"Format", result.Format},
			{"Size", fmt.Sprintf("%dx%d", result.Width, result.Height)},
			{"Quality", formatConfidence(result.QualityScore)},
		},
	})
	if len(result.Warnings) > 0 {
		md.H2("Warnings")
		md.BulletList(result.Warnings...)
	}
	return md.Build()
}

func writeStatsMarkdown(w io.Writer, path string, stats store.Stats) error {
	md := markdown.NewMarkdown(w)
	md.H1("Audit summary")
	md.PlainTextf("Database `%s`.", path)

	md.H2("Generations")
	rows := [][]string{{"total", strconv.FormatInt(stats.Generations, 10)}}
	for _, count := range stats.Archetypes {
		rows = append(rows, []string{count.Archetype, strconv.FormatInt(count.Total, 10)})
	}
	md.Table(markdown.TableSet{Header: []string{"Archetype", "Count"}, Rows: rows})

	md.H2("Recognition")
	totals := stats.Recognition
	md.Table(markdown.TableSet{
		Header: []string{"Requests", "Images", "Detected", "Tags", "NSFW"},
		Rows: [][]string{{
			strconv.FormatInt(totals.Requests, 10),
			strconv.FormatInt(totals.Images, 10),
			strconv.FormatInt(totals.Detected, 10),
			strconv.FormatInt(totals.Tags, 10),
			strconv.FormatInt(totals.NSFW, 10),
		}},
	})

	if len(stats.Tags) > 0 {
		tagRows := make([][]string, 0, len(stats.Tags))
		for _, count := range stats.Tags {
			tagRows = append(tagRows, []string{count.TagID, strconv.FormatInt(count.Total, 10)})
		}
		md.H2("Suggested tags")
		md.Table(markdown.TableSet{Header: []string{"Tag", "Count"}, Rows: tagRows})
	}
	return md.Build()
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatBBox(box [4]float64) string {
	parts := make([]string, len(box))
	for i, v := range box {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
