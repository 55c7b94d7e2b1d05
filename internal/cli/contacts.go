package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"opsbridge/internal/chatwoot"
)

func (c *cli) chatwoot(cmd *cobra.Command) (*chatwoot.Client, error) {
	a, err := c.load(cmd)
	if err != nil {
		return nil, err
	}
	return a.Chatwoot()
}

func (c *cli) contactsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contacts", Short: "Chatwoot contacts"}

	var page int
	list := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cw, err := c.chatwoot(cmd)
			if err != nil {
				return err
			}
			out, err := cw.ListContacts(cmd.Context(), page)
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
	list.Flags().IntVar(&page, "page", 0, "page number")

	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search contacts by name, email, phone or identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cw, err := c.chatwoot(cmd)
			if err != nil {
				return err
			}
			out, err := cw.SearchContacts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}

	var in chatwoot.NewContact
	var custom string
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a contact; country is inferred from the phone",
		Example: `  opsctl contacts create --inbox 2 --name "Ana" --identifier 5581999990000@s.whatsapp.net --instagram @ana`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if custom != "" {
				if err := json.Unmarshal([]byte(custom), &in.Custom); err != nil {
					return fmt.Errorf("--custom: %w", err)
				}
			}
			cw, err := c.chatwoot(cmd)
			if err != nil {
				return err
			}
			out, err := cw.CreateContact(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
	f := create.Flags()
	f.Int64Var(&in.InboxID, "inbox", 0, "inbox id")
	f.StringVar(&in.Name, "name", "", "display name")
	f.StringVar(&in.Identifier, "identifier", "", "WhatsApp JID or phone")
	f.StringVar(&in.Email, "email", "", "email")
	f.StringVar(&in.AvatarURL, "avatar", "", "avatar URL")
	f.StringVar(&in.City, "city", "", "city")
	f.StringVar(&in.Country, "country", "", "country name")
	f.StringVar(&in.CountryCode, "country-code", "", "ISO country code")
	f.StringVar(&in.Bio, "bio", "", "description")
	f.StringVar(&in.CompanyName, "company", "", "company name")
	f.StringVar(&in.Socials.Instagram, "instagram", "", "instagram handle or URL")
	f.StringVar(&in.Socials.Facebook, "facebook", "", "facebook handle or URL")
	f.StringVar(&in.Socials.LinkedIn, "linkedin", "", "linkedin handle or URL")
	f.StringVar(&in.Socials.Twitter, "twitter", "", "twitter handle or URL")
	f.StringVar(&in.Socials.GitHub, "github", "", "github handle or URL")
	f.StringVar(&custom, "custom", "", `custom attributes as JSON, e.g. {"tier":"gold"}`)

	var opts chatwoot.DeleteOptions
	var strict bool
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cw, err := c.chatwoot(cmd)
			if err != nil {
				return err
			}
			opts.OKOn404 = !strict
			out, err := cw.DeleteContact(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
	del.Flags().BoolVar(&opts.Verify, "verify", false, "confirm the contact is gone")
	del.Flags().BoolVar(&strict, "strict", false, "treat 404 as an error")

	cmd.AddCommand(list, search, create, del)
	return cmd
}
