package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
)

// seedManifest describes one organization down to its page images.
type seedManifest struct {
	Organization struct {
		Name         string `yaml:"name"`
		ShortName    string `yaml:"short_name"`
		Service      string `yaml:"service"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Region       string `yaml:"region"`
	} `yaml:"organization"`
	Collection struct {
		Name string `yaml:"name"`
		Slug string `yaml:"slug"`
	} `yaml:"collection"`
	Document struct {
		Identifier string `yaml:"identifier"`
		UseLongS   bool   `yaml:"use_long_s"`
	} `yaml:"document"`
	Pages []struct {
		Number int    `yaml:"number"`
		Image  string `yaml:"image"`
	} `yaml:"pages"`
}

var seedCmd = &cobra.Command{
	Use:   "seed MANIFEST",
	Short: "Create an organization, collection, document and pages from a YAML manifest",
	Long: `Create the ownership chain for a set of page images.

Example manifest:

  organization:
    name: Acme Archive
    short_name: acme
    service: T          # T test, A AWS Textract, L local Tesseract
  collection:
    name: Letters
    slug: letters
  document:
    identifier: doc-1
    use_long_s: true
  pages:
    - number: 1
      image: letters/doc-1/0001.png

Image paths are relative to storage.image_root.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		var m seedManifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return seed(ctx, a, &m, cmd)
		})
	},
}

func seed(ctx context.Context, a *app, m *seedManifest, cmd *cobra.Command) error {
	org, err := a.orgs.CreateOrganization(ctx, m.Organization.Name, m.Organization.ShortName)
	if err != nil {
		return err
	}
	if m.Organization.Service != "" {
		if err := a.orgs.SetCloudService(ctx, &entity.CloudService{
			OrganizationID: org.ID,
			Service:        constants.CloudService(m.Organization.Service),
			ClientID:       m.Organization.ClientID,
			ClientSecret:   m.Organization.ClientSecret,
			Region:         m.Organization.Region,
		}); err != nil {
			return err
		}
	}
	coll, err := a.orgs.CreateCollection(ctx, org.ID, m.Collection.Name, m.Collection.Slug)
	if err != nil {
		return err
	}
	doc, err := a.orgs.CreateDocument(ctx, coll.ID, m.Document.Identifier, m.Document.UseLongS)
	if err != nil {
		return err
	}

	created := make([]string, 0, len(m.Pages))
	for _, p := range m.Pages {
		if _, err := a.pages.Create(ctx, doc.ID, p.Number, p.Image); err != nil {
			return err
		}
		created = append(created, entity.OwnershipPath{
			Organization: org.ShortName,
			Collection:   coll.Slug,
			Document:     doc.Identifier,
			Page:         p.Number,
		}.String())
	}
	return printOut(cmd.OutOrStdout(), map[string]any{"pages": created})
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
