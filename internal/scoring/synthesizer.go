package scoring

import (
	"errors"

	"github.com/sirupsen/logrus"

	"profile-ml/service/internal/apperr"
	"profile-ml/service/internal/util"
)

// Synthesizer assembles character profiles from decision sets.
type Synthesizer struct {
	scorer  *Scorer
	catalog *Catalog
}

// NewSynthesizer wires the scorer and the archetype catalog.
func NewSynthesizer(scorer *Scorer, catalog *Catalog) *Synthesizer {
	return &Synthesizer{scorer: scorer, catalog: catalog}
}

// NewDefaultSynthesizer builds a synthesizer from the embedded weight table and catalog.
func NewDefaultSynthesizer() (*Synthesizer, error) {
	weights, err := DefaultWeights()
	if err != nil {
		return nil, err
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return NewSynthesizer(NewScorer(weights), catalog), nil
}

// Catalog exposes the archetype catalog the synthesizer resolves against.
func (s *Synthesizer) Catalog() *Catalog {
	if s == nil {
		return nil
	}
	return s.catalog
}

// Synthesize scores the decisions, classifies the result and builds the profile.
// The output is a pure function of the decisions and the injected tables.
func (s *Synthesizer) Synthesize(decisions DecisionSet) (CharacterProfile, error) {
	const op = "synthesize"
	if s == nil || s.scorer == nil || s.catalog == nil {
		err := apperr.Internal(op, errors.New("synthesizer not configured"))
		logrus.WithError(err).Error("generate character failed")
		return CharacterProfile{}, err
	}

	timer := util.StartTimer()
	eval := s.scorer.Evaluate(decisions)
	key := Classify(eval.Scores)
	archetype := s.catalog.Lookup(key)

	profile := CharacterProfile{
		Archetype:       archetype.Key,
		ArchetypeName:   archetype.Name,
		DominanceLevel:  eval.Scores.Dominance,
		SubmissionLevel: eval.Scores.Submission,
		Traits:          archetype.Traits,
		Personality:     derivePersonality(eval),
		Lifestyle:       deriveLifestyle(eval),
		Warnings:        eval.Warnings,
	}

	logrus.WithFields(logrus.Fields{
		"archetype":  profile.Archetype,
		"dominance":  profile.DominanceLevel,
		"submission": profile.SubmissionLevel,
		"decisions":  len(decisions),
		"considered": eval.Considered,
		"unweighted": eval.Unweighted,
		"duration":   timer.Elapsed(),
	}).Info("character generated")
	return profile, nil
}
