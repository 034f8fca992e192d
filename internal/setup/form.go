// Package setup is the interactive first-run configuration flow: pick the
// folders to watch, the payload mode, and the connection type.
package setup

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/huh"

	"github.com/mailwatch/mailwatch/internal/mailclient"
	"github.com/mailwatch/mailwatch/internal/model"
	"github.com/mailwatch/mailwatch/internal/store"
)

// Run walks the user through folder, mode, and connection selection and
// persists the answers. Previously watched folders are preselected.
func Run(ctx context.Context, client mailclient.Client, st store.Store) error {
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	eligible := make(map[model.FolderKey]model.Folder)
	var options []huh.Option[model.FolderKey]
	for _, account := range accounts {
		folders, err := client.Folders(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("listing folders of %s: %w", account.ID, err)
		}
		for _, folder := range folders {
			if !folder.WatchEligible(account.Type) {
				continue
			}
			eligible[folder.Key()] = folder
			label := fmt.Sprintf("%s %s", account.Name, folder.Path)
			options = append(options, huh.NewOption(label, folder.Key()))
		}
	}
	if len(options) == 0 {
		return fmt.Errorf("no folders eligible for watching")
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].Key < options[j].Key
	})

	watched, err := st.GetWatchedFolders(ctx)
	if err != nil {
		return fmt.Errorf("loading watched folders: %w", err)
	}
	selected := make([]model.FolderKey, 0, len(watched))
	for _, f := range watched {
		if _, ok := eligible[f.Key()]; ok {
			selected = append(selected, f.Key())
		}
	}

	mode, err := st.GetMode(ctx)
	if err != nil {
		return fmt.Errorf("loading notification mode: %w", err)
	}
	connType, err := st.GetConnectionType(ctx)
	if err != nil {
		return fmt.Errorf("loading connection type: %w", err)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[model.FolderKey]().
				Title("Watched folders").
				Description("Notifications fire for mail in these folders").
				Options(options...).
				Value(&selected),
			huh.NewSelect[model.Mode]().
				Title("Payload mode").
				Options(
					huh.NewOption("Simple - a bare unread/no-unread boolean", model.ModeSimple),
					huh.NewOption("Extended - full account, folder and message detail", model.ModeExtended),
				).
				Value(&mode),
			huh.NewSelect[model.ConnectionType]().
				Title("Connection type").
				Options(
					huh.NewOption("Connectionless - dial per notification", model.Connectionless),
					huh.NewOption("Connection based - keep one connection open", model.ConnectionBased),
				).
				Value(&connType),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("running setup form: %w", err)
	}

	folders := make([]model.Folder, 0, len(selected))
	for _, key := range selected {
		folders = append(folders, eligible[key])
	}

	if err := st.SetWatchedFolders(ctx, folders); err != nil {
		return fmt.Errorf("saving watched folders: %w", err)
	}
	if err := st.SetMode(ctx, mode); err != nil {
		return fmt.Errorf("saving notification mode: %w", err)
	}
	if err := st.SetConnectionType(ctx, connType); err != nil {
		return fmt.Errorf("saving connection type: %w", err)
	}
	if err := st.MarkFirstRunDone(ctx); err != nil {
		return fmt.Errorf("recording setup completion: %w", err)
	}
	return nil
}
