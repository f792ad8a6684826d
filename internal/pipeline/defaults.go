package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"diagramd/internal/domain"
	"diagramd/internal/providers/imagegen"
	"diagramd/internal/providers/vlm"
	"diagramd/internal/storage"
)

const retrieverSystem = `You curate visual reference guidelines for scientific and technical diagrams.
Given a methodology description and the communicative intent of the figure,
select the conventions from the catalog that apply and restate them as a short
numbered list. Do not invent conventions outside the catalog.`

const plannerSystem = `You are an expert at planning technical diagrams. Produce a precise textual
specification of a single diagram: its components, their labels, the connections
between them, and the overall layout. Be concrete and unambiguous; the
specification will be handed to an image generation model verbatim.`

const stylistSystem = `You polish diagram specifications for visual quality. Keep the structure and
labels intact; refine spacing, grouping, color usage and typography hints so the
rendered figure reads cleanly at publication size. Return only the revised
specification.`

const criticSystem = `You review rendered diagrams. Compare the image against the source material and
the stated communicative intent. Report concrete defects (missing components,
wrong connections, unreadable labels, misleading emphasis) followed by a one-line
overall judgement.`

// guidelineCatalog is the retriever's candidate corpus. Entries are style
// conventions observed across published figures.
var guidelineCatalog = []string{
	"Flow left-to-right or top-to-bottom; never mix directions in one figure.",
	"Label every arrow that carries data; leave pure control edges unlabeled.",
	"Group stages of a pipeline in rounded containers with a short stage title.",
	"Use one accent color for the contribution and neutral grays elsewhere.",
	"Prefer icons over text for common components (database, model, document).",
	"Keep font sizes to at most two levels: component labels and annotations.",
	"Show iteration or feedback with a single curved return arrow, not loops per step.",
	"Align repeated elements on a grid so variants are visually comparable.",
}

// GuidelineRetriever asks the VLM to select the applicable catalog entries.
type GuidelineRetriever struct {
	vlm vlm.Provider
}

func NewGuidelineRetriever(provider vlm.Provider) *GuidelineRetriever {
	return &GuidelineRetriever{vlm: provider}
}

func (r *GuidelineRetriever) Run(ctx context.Context, in domain.GenerationInput) (string, error) {
	var b strings.Builder
	b.WriteString("Catalog:\n")
	for i, g := range guidelineCatalog {
		fmt.Fprintf(&b, "%d. %s\n", i+1, g)
	}
	b.WriteString("\nMethodology:\n")
	b.WriteString(in.SourceContext)
	b.WriteString("\n\nCommunicative intent:\n")
	b.WriteString(in.CommunicativeIntent)

	return r.vlm.Complete(ctx, vlm.Request{System: retrieverSystem, Prompt: b.String()})
}

// DescriptionPlanner drafts the diagram specification.
type DescriptionPlanner struct {
	vlm vlm.Provider
}

func NewDescriptionPlanner(provider vlm.Provider) *DescriptionPlanner {
	return &DescriptionPlanner{vlm: provider}
}

func (p *DescriptionPlanner) Run(ctx context.Context, in domain.GenerationInput, references string) (string, error) {
	var b strings.Builder
	b.WriteString("Methodology:\n")
	b.WriteString(in.SourceContext)
	b.WriteString("\n\nCommunicative intent:\n")
	b.WriteString(in.CommunicativeIntent)
	if strings.TrimSpace(references) != "" {
		b.WriteString("\n\nApplicable style conventions:\n")
		b.WriteString(references)
	}
	b.WriteString("\n\nWrite the diagram specification.")

	return p.vlm.Complete(ctx, vlm.Request{System: plannerSystem, Prompt: b.String()})
}

// AestheticStylist refines the drafted specification.
type AestheticStylist struct {
	vlm vlm.Provider
}

func NewAestheticStylist(provider vlm.Provider) *AestheticStylist {
	return &AestheticStylist{vlm: provider}
}

func (s *AestheticStylist) Run(ctx context.Context, description string) (string, error) {
	return s.vlm.Complete(ctx, vlm.Request{System: stylistSystem, Prompt: description})
}

// ImageVisualizer renders the specification through the image generation
// provider and writes each candidate into the run directory.
type ImageVisualizer struct {
	gen    imagegen.Generator
	runs   *storage.RunStore
	runDir string
}

func NewImageVisualizer(gen imagegen.Generator, runs *storage.RunStore, runDir string) *ImageVisualizer {
	return &ImageVisualizer{gen: gen, runs: runs, runDir: runDir}
}

func (v *ImageVisualizer) Run(ctx context.Context, description string, iteration int) (string, error) {
	img, err := v.gen.Generate(ctx, imagegen.Request{Prompt: description})
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("diagram_iter_%d.png", iteration)
	path, err := v.runs.Write(v.runDir, name, img.Data)
	if err != nil {
		return "", err
	}
	return path, nil
}

// VisionCritic evaluates a rendered image with a vision-capable VLM call.
type VisionCritic struct {
	vlm vlm.Provider
}

func NewVisionCritic(provider vlm.Provider) *VisionCritic {
	return &VisionCritic{vlm: provider}
}

func (c *VisionCritic) Run(ctx context.Context, in domain.GenerationInput, imagePath string, iteration int) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read candidate image: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d candidate attached.\n\nMethodology:\n", iteration)
	b.WriteString(in.SourceContext)
	b.WriteString("\n\nCommunicative intent:\n")
	b.WriteString(in.CommunicativeIntent)

	return c.vlm.Complete(ctx, vlm.Request{
		System: criticSystem,
		Prompt: b.String(),
		Images: [][]byte{data},
	})
}

var (
	_ Retriever  = (*GuidelineRetriever)(nil)
	_ Planner    = (*DescriptionPlanner)(nil)
	_ Stylist    = (*AestheticStylist)(nil)
	_ Visualizer = (*ImageVisualizer)(nil)
	_ Critic     = (*VisionCritic)(nil)
)
