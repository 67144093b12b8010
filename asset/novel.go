package asset

import (
	"fmt"
	"strings"
	"time"

	"xdao.co/gep/gep"
)

const contentVersion = "1.0"

// Classification is the genre/structure label the generation engine
// attaches to produced content.
type Classification struct {
	Genre     string
	Structure string
	Elements  []string
}

// CapsuleSource is content already produced by the generation engine.
// The node never generates content itself.
type CapsuleSource interface {
	Content() string
	Classification() Classification
}

// Classifier picks a generation tier for a request. Implemented by the
// generation engine; declared here so tier selection stays explicit.
type Classifier interface {
	Classify(request string) (tier string, err error)
}

// NovelGene describes a reusable writing pattern for a genre.
func NovelGene(genre string, elements []string, structure string) Asset {
	els := make([]any, len(elements))
	for i, e := range elements {
		els[i] = e
	}
	return Asset{
		Type:    TypeGene,
		Name:    genre + "小说基因",
		Summary: fmt.Sprintf("包含%s等核心要素的%s小说写作基因", strings.Join(elements, ", "), genre),
		Content: map[string]any{
			"genre":     genre,
			"elements":  els,
			"structure": structure,
			"version":   contentVersion,
		},
		Confidence:   0.85,
		BlastRadius:  "genre",
		SignalsMatch: []string{"novel", "writing", genre},
	}
}

// NovelCapsule packages a prompt template that realizes a genre gene.
func NovelCapsule(genre, promptTemplate string) Asset {
	return Asset{
		Type:    TypeCapsule,
		Name:    genre + "小说生成胶囊",
		Summary: fmt.Sprintf("用于生成%s类小说的AI提示词胶囊", genre),
		Content: map[string]any{
			"genre":           genre,
			"prompt_template": promptTemplate,
			"version":         contentVersion,
		},
		Confidence:   0.80,
		BlastRadius:  "prompt",
		SignalsMatch: []string{"novel", "generate", genre},
	}
}

// CapsuleFromSource builds a Capsule around engine output.
func CapsuleFromSource(src CapsuleSource) Asset {
	c := src.Classification()
	a := NovelCapsule(c.Genre, src.Content())
	if c.Structure != "" {
		a.Content["structure"] = c.Structure
	}
	if len(c.Elements) > 0 {
		els := make([]any, len(c.Elements))
		for i, e := range c.Elements {
			els[i] = e
		}
		a.Content["elements"] = els
	}
	return a
}

// NewEvolutionEvent records the attempt that produced a gene and capsule.
// at is part of the content, so callers that want reproducible identities
// must pass a fixed time.
func NewEvolutionEvent(subject, problem, solution string, success bool, at time.Time) Asset {
	return Asset{
		Type:    TypeEvolutionEvent,
		Name:    "小说基因创建",
		Summary: fmt.Sprintf("创建%s基因的过程记录", subject),
		Content: map[string]any{
			"problem":        problem,
			"solution":       solution,
			"success":        success,
			"success_streak": 1,
			"timestamp":      gep.Timestamp(at),
		},
		Confidence:   0.90,
		BlastRadius:  "local",
		SignalsMatch: []string{"evolution", "novel"},
	}
}
