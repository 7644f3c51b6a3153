package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/bulk"
	"github.com/trezcool/masomo-portal/core/user"
)

// dirDownloader saves downloads in a local directory.
type dirDownloader struct {
	dir   string
	saved []string
}

func (d *dirDownloader) Save(_ context.Context, dl bulk.Download) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating output dir")
	}
	path := filepath.Join(d.dir, dl.Filename)
	if err := ioutil.WriteFile(path, dl.Data, 0o644); err != nil {
		return errors.Wrap(err, "writing file")
	}
	d.saved = append(d.saved, path)
	return nil
}

func (cli *commandLine) newWidget(entity bulk.EntityType, dl *dirDownloader) *bulk.Widget {
	alerter := bulk.AlertFunc(func(msg string) { fmt.Fprintln(cli.stderr, msg) })
	return bulk.New(entity, cli.client, dl, alerter, nil)
}

func (cli *commandLine) prepareDownload(ctx context.Context, entityName, formatName string) (bulk.EntityType, bulk.Format, error) {
	entity, err := bulk.ParseEntityType(entityName)
	if err != nil {
		return "", "", err
	}
	format, err := bulk.ParseFormat(formatName)
	if err != nil {
		return "", "", err
	}
	if _, err = cli.authorize(ctx, user.RoleAdmin); err != nil {
		return "", "", err
	}
	return entity, format, nil
}

func (cli *commandLine) downloadTemplate(ctx context.Context, entityName, formatName, dir string) error {
	entity, format, err := cli.prepareDownload(ctx, entityName, formatName)
	if err != nil {
		return err
	}
	dl := &dirDownloader{dir: dir}
	if err = cli.newWidget(entity, dl).DownloadTemplate(ctx, format); err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout, "Saved %s\n", dl.saved[0])
	return nil
}

func (cli *commandLine) export(ctx context.Context, entityName, formatName, dir string) error {
	entity, format, err := cli.prepareDownload(ctx, entityName, formatName)
	if err != nil {
		return err
	}
	dl := &dirDownloader{dir: dir}
	if err = cli.newWidget(entity, dl).ExportAll(ctx, format); err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout, "Saved %s\n", dl.saved[0])
	return nil
}

func (cli *commandLine) importFile(ctx context.Context, entityName, path string) error {
	entity, err := bulk.ParseEntityType(entityName)
	if err != nil {
		return err
	}
	if _, err = cli.authorize(ctx, user.RoleAdmin); err != nil {
		return err
	}

	name := filepath.Base(path)
	w := cli.newWidget(entity, &dirDownloader{})
	if !bulk.ValidFileName(name) {
		_, err = w.ImportFile(ctx, bulk.File{Name: name}) // alerts
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer f.Close()

	w.OpenImport()
	res, err := w.SelectFile(ctx, bulk.File{Name: name, Reader: f})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout, "Imported: %d\nFailed: %d\n", res.Success, res.Failed)
	for _, msg := range res.Errors {
		fmt.Fprintf(cli.stdout, "  - %s\n", msg)
	}
	if res.Success == 0 && res.Failed > 0 {
		return errors.New("nothing was imported")
	}
	return nil
}
