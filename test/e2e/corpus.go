// Package e2e provides end-to-end tests over a generated policy corpus with
// a scripted chat completions endpoint standing in for the model provider.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is one corpus file (name and content).
type Document struct {
	Name    string
	Content string
}

// QueryCase defines a question and the document(s) that must appear among
// the supporting chunks of its answer.
type QueryCase struct {
	Query        string
	ExpectedDocs []string
}

// Corpus holds documents and query cases for end-to-end tests.
type Corpus struct {
	Documents []Document
	Cases     []QueryCase
}

// BuildCorpus returns a corpus of policy documents, each carrying a unique
// signature clause so query cases can assert the right document surfaced.
func BuildCorpus() *Corpus {
	topics := []struct {
		name   string
		clause string
		query  string
	}{
		{
			"grace-period.txt",
			"A grace period of thirty days is provided for premium payment after the due date to renew or continue the policy without losing continuity benefits.",
			"What is the grace period for premium payment?",
		},
		{
			"maternity.txt",
			"Maternity expenses are covered after the female insured person has been continuously covered for twenty four months, limited to two deliveries during the policy period.",
			"What are the conditions for maternity expense coverage?",
		},
		{
			"pre-existing.txt",
			"Pre-existing diseases and their direct complications are excluded until the expiry of thirty six months of continuous coverage after the date of inception.",
			"How long is the waiting period for pre-existing diseases?",
		},
		{
			"cataract.txt",
			"The policy has a specific waiting period of two years for cataract surgery from the date of first enrollment.",
			"What is the waiting period for cataract surgery?",
		},
		{
			"room-rent.txt",
			"Daily room rent is capped at one percent of the sum insured and intensive care unit charges are capped at two percent of the sum insured.",
			"Are there sub-limits on room rent and ICU charges?",
		},
		{
			"organ-donor.txt",
			"Medical expenses for the organ donor's hospitalization are covered when the organ is donated to an insured person in compliance with the Transplantation of Human Organs Act.",
			"Does the policy cover organ donor expenses?",
		},
		{
			"no-claim.txt",
			"A no claim discount of five percent on the base premium is offered on renewal provided no claim was made in the preceding policy year.",
			"Is there a no claim discount on renewal?",
		},
		{
			"ayush.txt",
			"Inpatient treatment under Ayurveda, Yoga, Naturopathy, Unani, Siddha and Homeopathy systems is covered up to the sum insured in an AYUSH hospital.",
			"Does the policy cover AYUSH treatments?",
		},
	}

	corpus := &Corpus{}
	for _, t := range topics {
		padding := fmt.Sprintf("This section forms part of the policy terms for %s. ", strings.TrimSuffix(t.name, ".txt"))
		corpus.Documents = append(corpus.Documents, Document{
			Name:    t.name,
			Content: padding + t.clause,
		})
		corpus.Cases = append(corpus.Cases, QueryCase{
			Query:        t.query,
			ExpectedDocs: []string{t.name},
		})
	}
	return corpus
}

// WriteTo writes every corpus document into dir and returns dir.
func (c *Corpus) WriteTo(dir string) error {
	for _, doc := range c.Documents {
		if err := os.WriteFile(filepath.Join(dir, doc.Name), []byte(doc.Content), 0600); err != nil {
			return err
		}
	}
	return nil
}
