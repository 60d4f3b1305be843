package studio

import (
	"github.com/spf13/cobra"

	"storyloom/internal/cli/scheme/colours"
	"storyloom/internal/domain/story"
	"storyloom/internal/story/draft"
)

// AddDraftCommands adds the draft command group to root.
func (s *Studio) AddDraftCommands(root *cobra.Command) {
	draftCmd := &cobra.Command{
		Use:   "draft",
		Short: "Keep a story between sessions",
	}

	saveCmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Save a story file as the current draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := story.ReadFile(args[0])
			if err != nil {
				return err
			}
			return s.saveDraft(st)
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Write the current draft to a story file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			st, level, err := s.draftStore().Load()
			if err != nil {
				return err
			}
			if out == "" {
				out = st.Slug() + ".json"
			}
			if err := story.WriteFile(out, st); err != nil {
				return err
			}
			s.showStory(st)
			s.print(colours.Success, "Draft (%s) written to %s\n", level, out)
			return nil
		},
	}
	loadCmd.Flags().StringP("out", "o", "", "Story file to write (.json or .yaml)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the current draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.draftStore().Clear(); err != nil {
				return err
			}
			s.print(colours.Success, "Draft cleared\n")
			return nil
		},
	}

	draftCmd.AddCommand(saveCmd, loadCmd, clearCmd)
	root.AddCommand(draftCmd)
}

func (s *Studio) draftStore() *draft.Store {
	return draft.NewStore(s.Config.Draft.Dir, s.Config.Draft.Quota)
}

func (s *Studio) saveDraft(st *story.Story) error {
	level, err := s.draftStore().Save(st)
	if err != nil {
		return err
	}
	if level == draft.LevelFull {
		s.print(colours.Success, "Draft saved\n")
	} else {
		s.print(colours.Warning, "Draft saved %s to stay under the storage quota\n", level)
	}
	return nil
}
