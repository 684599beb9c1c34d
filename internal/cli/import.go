package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ontology/internal/objectprop"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		container      string
		domainURI      string
		template       string
		namespace      string
		skipValidation bool
	)
	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Bulk-import rows as objects of a domain",
		Long: `Import reads one JSON object per line. Keys are matched to the domain's
properties by name, label, URI or import alias, ignoring case; a
<name>_MVIndicator key carries the missing-value code. Object URIs come
from --template, where ${column} is replaced by the row's value, or are
generated in --namespace. All rows are written in one transaction: any
conversion or validation failure leaves the store unchanged.`,
		Example: `  ontology import samples.jsonl --domain urn:d:Sample --template 'urn:lsid:example.org:Sample:${Name}' -c /Lab
  ontology import results.jsonl --domain urn:d:Result --namespace Result -c /Lab`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if domainURI == "" {
				return fmt.Errorf("%w: --domain is required", errUsage)
			}
			var helper objectprop.ImportHelper
			switch {
			case template != "" && namespace != "":
				return fmt.Errorf("%w: --template and --namespace are exclusive", errUsage)
			case template != "":
				helper = objectprop.TemplateHelper{Template: template}
			default:
				helper = objectprop.GUIDHelper{Namespace: namespace}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			defer f.Close()

			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			c, err := m.Resolve(container)
			if err != nil {
				return err
			}
			objects, err := m.Objects()
			if err != nil {
				return err
			}

			progress := func(r objectprop.ImportResult) {
				if !a.flags.jsonMode {
					fmt.Fprintf(cmd.ErrOrStderr(), "batch %d: %d rows\n", r.Batches, r.Rows)
				}
			}
			res, err := objects.Import(cmd.Context(), types.System, c.ID, domainURI,
				objectprop.NewJSONLReader(f), helper,
				objectprop.ImportOptions{SkipValidation: skipValidation, Progress: progress})
			if err != nil {
				return err
			}
			return a.output(cmd, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "imported %d rows (%d values, %d batches)\n", res.Rows, res.Values, res.Batches)
				return err
			})
		},
	}
	containerFlag(cmd, &container)
	f := cmd.Flags()
	f.StringVarP(&domainURI, "domain", "d", "", "domain URI the rows belong to")
	f.StringVar(&template, "template", "", "object URI template with ${column} references")
	f.StringVar(&namespace, "namespace", "Object", "LSID namespace for generated object URIs")
	f.BoolVar(&skipValidation, "skip-validation", false, "skip custom validators (conversion and required checks still run)")
	return cmd
}
