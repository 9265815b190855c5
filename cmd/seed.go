package main

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/seked/leadscout/internal/model"
	"github.com/seked/leadscout/internal/store"
)

var seedFile string

// seedData is the YAML shape of a seed file. Omitted fields fall back to
// sensible defaults (WIDE_WEB pack, DM type, enabled).
type seedData struct {
	Queries []struct {
		Name       string `yaml:"name"`
		Query      string `yaml:"query"`
		SourcePack string `yaml:"source_pack"`
	} `yaml:"queries"`
	Templates []struct {
		Name       string `yaml:"name"`
		Type       string `yaml:"type"`
		BuyerType  string `yaml:"buyer_type"`
		ServiceTag string `yaml:"service_tag"`
		PainTag    string `yaml:"pain_tag"`
		Body       string `yaml:"body"`
	} `yaml:"templates"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load curated query packs and outreach templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("outcome"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		queries, templates, err := loadSeeds(seedFile)
		if err != nil {
			return err
		}

		if err := seedQueries(ctx, st, queries); err != nil {
			return err
		}

		for _, t := range templates {
			if err := st.UpsertTemplate(ctx, t); err != nil {
				return eris.Wrapf(err, "seed template %s", t.Name)
			}
		}

		disabled, err := disableUncurated(ctx, st, queries)
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int("queries", len(queries)),
			zap.Int("templates", len(templates)),
			zap.Int("disabled", disabled),
		)
		return nil
	},
}

func loadSeeds(path string) ([]model.Query, []model.Template, error) {
	if path == "" {
		return defaultSeedQueries(), defaultSeedTemplates(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "read seed file %s", path)
	}

	var data seedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, nil, eris.Wrapf(err, "parse seed file %s", path)
	}

	queries := make([]model.Query, 0, len(data.Queries))
	for _, q := range data.Queries {
		pack := model.SourcePack(q.SourcePack)
		if pack == "" {
			pack = model.SourcePackWideWeb
		}
		queries = append(queries, model.Query{
			Name:       q.Name,
			Query:      q.Query,
			SourcePack: pack,
			Enabled:    true,
		})
	}

	templates := make([]model.Template, 0, len(data.Templates))
	for _, t := range data.Templates {
		typ := model.TemplateType(t.Type)
		if typ == "" {
			typ = model.TemplateTypeDM
		}
		templates = append(templates, model.Template{
			ID:         templateID(t.Name),
			Name:       t.Name,
			Type:       typ,
			BuyerType:  t.BuyerType,
			ServiceTag: t.ServiceTag,
			PainTag:    t.PainTag,
			Body:       t.Body,
			Enabled:    true,
		})
	}

	return queries, templates, nil
}

// seedQueries loads queries through the bulk COPY path when the store
// supports it, one upsert at a time otherwise.
func seedQueries(ctx context.Context, st store.Store, queries []model.Query) error {
	if pg, ok := st.(*store.PostgresStore); ok {
		n, err := pg.SeedQueries(ctx, queries)
		if err != nil {
			return eris.Wrap(err, "bulk seed queries")
		}
		zap.L().Debug("bulk query seed", zap.Int64("rows", n))
		return nil
	}

	for _, q := range queries {
		if err := st.UpsertQuery(ctx, q); err != nil {
			return eris.Wrapf(err, "seed query %s", q.Name)
		}
	}
	return nil
}

// disableUncurated turns off every stored query that is neither in the
// curated seed set nor a bandit-proposed candidate.
func disableUncurated(ctx context.Context, st store.Store, curated []model.Query) (int, error) {
	names := make(map[string]bool, len(curated))
	for _, q := range curated {
		names[q.Name] = true
	}

	existing, err := st.ListQueries(ctx, false)
	if err != nil {
		return 0, eris.Wrap(err, "list queries")
	}

	disabled := 0
	for _, q := range existing {
		if names[q.Name] || strings.HasPrefix(q.Name, "CANDIDATE:") || !q.Enabled {
			continue
		}
		if err := st.SetQueryEnabled(ctx, q.ID, false); err != nil {
			return disabled, eris.Wrapf(err, "disable query %s", q.Name)
		}
		disabled++
	}
	return disabled, nil
}

// templateID derives a stable id from the template name so re-seeding
// updates in place instead of duplicating.
func templateID(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}

func defaultSeedQueries() []model.Query {
	return []model.Query{
		{
			Name:       "Master Query (balanced)",
			Query:      `("looking for" OR "need" OR "hiring" OR "editor needed" OR "seeking") ("video editor" OR "short form editor" OR "reels editor" OR "tiktok editor" OR "podcast editor" OR "repurpose") (budget OR paid OR rate OR retainer OR asap OR deadline) -job -jobs -career -salary -apply -portfolio -"for hire" -"available for work" -upwork -fiverr -freelancer -ziprecruiter -indeed -glassdoor -greenhouse -lever`,
			SourcePack: model.SourcePackWideWeb,
			Enabled:    true,
		},
		{
			Name:       "Agency Overflow (buyer intent)",
			Query:      `(agency OR "for my client" OR clients OR "white label") ("need" OR "looking for" OR hiring OR outsource) (editor OR "video editor" OR "short form" OR reels OR tiktok) (budget OR retainer OR paid OR deadline) -job -jobs -portfolio -"for hire" -upwork -fiverr -ziprecruiter -indeed`,
			SourcePack: model.SourcePackProfessional,
			Enabled:    true,
		},
		{
			Name:       "Podcast Repurpose (buyer intent)",
			Query:      `(podcast OR episode) (repurpose OR clips OR shorts) ("looking for" OR "need" OR hiring OR outsource) (editor OR "video editor") (paid OR budget OR rate OR retainer) -job -jobs -portfolio -"for hire" -upwork -fiverr -ziprecruiter -indeed`,
			SourcePack: model.SourcePackForums,
			Enabled:    true,
		},
		{
			Name:       "Coaches/Consultants (buyer intent)",
			Query:      `(coach OR consultant OR "online course" OR "personal brand") ("looking for" OR "need" OR hiring OR outsource) ("short form" OR reels OR tiktok OR shorts) (editor OR "video editor") (budget OR paid OR retainer) -job -jobs -portfolio -"for hire" -upwork -fiverr`,
			SourcePack: model.SourcePackProfessional,
			Enabled:    true,
		},
		{
			Name:       "Ecom/UGC Ads (buyer intent)",
			Query:      `(ecommerce OR shopify OR "direct response" OR ugc OR "paid ads") ("looking for" OR "need" OR hiring OR outsource) (editor OR "video editor" OR "short form") (paid OR budget OR rate OR retainer) -job -jobs -portfolio -"for hire" -upwork -fiverr`,
			SourcePack: model.SourcePackWideWeb,
			Enabled:    true,
		},
		{
			Name:       "Urgent / Deadline (buyer intent)",
			Query:      `(urgent OR asap OR deadline OR "this week" OR "today") ("looking for" OR "need" OR hiring) ("video editor" OR editor) (paid OR budget OR rate) -job -jobs -salary -apply -portfolio -"for hire" -upwork -fiverr -ziprecruiter -indeed`,
			SourcePack: model.SourcePackWideWeb,
			Enabled:    true,
		},
		{
			Name:       "Community Hiring Posts (forums/social)",
			Query:      `("editor needed" OR "looking for an editor" OR "hiring" OR "need someone to edit") (shorts OR reels OR tiktok OR podcast) (paid OR budget OR rate OR $) -job -jobs -apply -portfolio -"for hire" -ziprecruiter -indeed`,
			SourcePack: model.SourcePackSocial,
			Enabled:    true,
		},
		{
			Name:       "Specific deliverable: captions/subtitles",
			Query:      `(captions OR subtitles) ("looking for" OR "need" OR hiring OR outsource) (editor OR "video editor") (paid OR budget OR rate) -job -jobs -apply -portfolio -"for hire" -upwork -fiverr`,
			SourcePack: model.SourcePackWideWeb,
			Enabled:    true,
		},
		{
			Name:       "Batch production / weekly clips",
			Query:      `("clips per week" OR "weekly clips" OR batch OR "turnaround") ("looking for" OR need OR hiring OR outsource) ("short form" OR reels OR tiktok OR shorts) (editor OR "video editor") (paid OR retainer OR budget) -job -jobs -portfolio -"for hire" -upwork -fiverr`,
			SourcePack: model.SourcePackWideWeb,
			Enabled:    true,
		},
	}
}

func defaultSeedTemplates() []model.Template {
	return []model.Template{
		{
			ID:      templateID("DM_1 Generic"),
			Name:    "DM_1 Generic",
			Type:    model.TemplateTypeDM,
			Body:    "Hey {name} — saw your post about {pain_1}. I help turn long-form into high-retention short clips (captions + hooks). If you want, I can do a quick sample on one clip so you can judge the style.\n\nIf this is timely, what deadline are you working with?",
			Enabled: true,
		},
		{
			ID:        templateID("DM_1 Agency"),
			Name:      "DM_1 Agency",
			Type:      model.TemplateTypeDM,
			BuyerType: "AGENCY",
			Body:      "Hey {name} — sounds like you're handling client overflow ({pain_1}). I support agencies with reliable short-form editing capacity (48-hour standard / 12-hour rush).\n\nWant me to send pricing + a quick sample workflow?",
			Enabled:   true,
		},
		{
			ID:         templateID("DM_1 Podcaster"),
			Name:       "DM_1 Podcaster",
			Type:       model.TemplateTypeDM,
			ServiceTag: "PODCAST_REPURPOSE",
			Body:       "Hey {name} — if you're repurposing podcast episodes into clips, I can take the full pipeline: selection, subtitles, hooks, and platform-ready exports.\n\nHow many clips/week are you aiming for right now?",
			Enabled:    true,
		},
		{
			ID:      templateID("FU_1 Generic"),
			Name:    "FU_1 Generic",
			Type:    model.TemplateTypeFU,
			Body:    "Quick follow-up — still looking for help with {pain_1}? If you tell me your deadline + target platform, I can recommend a simple plan.",
			Enabled: true,
		},
		{
			ID:      templateID("FU_2 Generic"),
			Name:    "FU_2 Generic",
			Type:    model.TemplateTypeFU,
			Body:    "Last ping — if it's easier, I can do a 1-clip sample first. No pressure either way. Want me to send an example?",
			Enabled: true,
		},
	}
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML seed file (default: built-in curated packs)")
	rootCmd.AddCommand(seedCmd)
}
