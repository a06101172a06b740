package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

func NewTriageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage <finding-id>",
		Short: "Record a triage verdict for a persisted finding",
		Long: `Record a triage verdict for one finding. The verdict lands in the triage
sidecar next to the results file and is merged into every subsequent read.

Valid statuses: ` + models.TriageTruePositive + `, ` + models.TriageFalsePositive + `, ` + models.TriageUntriaged + `.`,
		Args: cobra.ExactArgs(1),
		RunE: runTriage,
	}

	cmd.Flags().String("status", "", "Triage verdict for the finding")
	cmd.Flags().String("rationale", "", "Free-text reasoning behind the verdict")
	cmd.Flags().Float64("confidence", 0, "Confidence in the verdict, 0.0 to 1.0")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func runTriage(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	rationale, _ := cmd.Flags().GetString("rationale")
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	if err := eng.store.ApplyTriage(args[0], models.TriageAnnotation{
		Status:     status,
		Rationale:  rationale,
		Confidence: confidence,
	}); err != nil {
		return err
	}

	fmt.Printf("Finding %s marked %s\n", args[0], status)
	return nil
}
