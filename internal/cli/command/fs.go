package command

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/core/domain"
)

// FSCommand returns the filesystem subcommand group.
func FSCommand() *cli.Command {
	return &cli.Command{
		Name:  "fs",
		Usage: "Filesystem commands",
		Subcommands: []*cli.Command{
			{
				Name:      "read",
				Aliases:   []string{"cat"},
				Usage:     "Print a remote file",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "text", Usage: "Read as text, replacing invalid UTF-8"},
				},
				Action: fsRead,
			},
			{
				Name:      "write",
				Usage:     "Write stdin (or --text) to a remote file",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "Write this text instead of stdin"},
					&cli.BoolFlag{Name: "append", Aliases: []string{"a"}, Usage: "Append instead of truncating"},
					parentsFlag(),
				},
				Action: fsWrite,
			},
			{
				Name:      "ls",
				Usage:     "List a remote directory",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "depth", Aliases: []string{"d"}, Usage: "Levels to descend, 0 for unlimited", Value: 1},
				},
				Action: fsList,
			},
			{
				Name:      "mkdir",
				Usage:     "Create a remote directory",
				ArgsUsage: "PATH",
				Flags:     []cli.Flag{parentsFlag()},
				Action:    fsMkdir,
			},
			{
				Name:      "rm",
				Usage:     "Remove a remote file or directory",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Remove directories and their contents"},
				},
				Action: fsRemove,
			},
			{
				Name:      "cp",
				Usage:     "Copy a remote file or directory",
				ArgsUsage: "SRC DST",
				Flags:     []cli.Flag{parentsFlag()},
				Action:    fsTwoPath(domain.ReqCopy),
			},
			{
				Name:      "mv",
				Usage:     "Rename a remote file or directory",
				ArgsUsage: "SRC DST",
				Flags:     []cli.Flag{parentsFlag()},
				Action:    fsTwoPath(domain.ReqRename),
			},
			{
				Name:      "exists",
				Usage:     "Report whether a remote path exists",
				ArgsUsage: "PATH",
				Action:    fsExists,
			},
			{
				Name:      "stat",
				Usage:     "Show metadata of a remote path",
				ArgsUsage: "PATH",
				Action:    fsStat,
			},
		},
	}
}

func parentsFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "parents",
		Aliases: []string{"p"},
		Usage:   "Create missing parent directories",
	}
}

func fsRead(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	req := domain.RequestData{Type: domain.ReqFileRead, Path: c.Args().First()}
	if c.Bool("text") {
		req.Type = domain.ReqFileReadText
	}

	res, err := doOne(c, req)
	if err != nil {
		return err
	}
	switch res.Type {
	case domain.ResBlob:
		_, err = c.App.Writer.Write(res.Data)
	case domain.ResText:
		_, err = io.WriteString(c.App.Writer, res.Text)
	default:
		err = expect(res, domain.ResBlob)
	}
	return err
}

func fsWrite(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	req := domain.RequestData{Path: c.Args().First(), CreateParents: c.Bool("parents")}

	if c.IsSet("text") {
		req.Text = c.String("text")
		req.Type = domain.ReqFileWriteText
		if c.Bool("append") {
			req.Type = domain.ReqFileAppendText
		}
	} else {
		if inShell(c) {
			return errors.New("write needs --text in the shell")
		}
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		req.Data = data
		req.Type = domain.ReqFileWrite
		if c.Bool("append") {
			req.Type = domain.ReqFileAppend
		}
	}

	res, err := doOne(c, req)
	if err != nil {
		return err
	}
	return expect(res, domain.ResOk)
}

func fsList(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	res, err := doOne(c, domain.RequestData{
		Type:  domain.ReqDirRead,
		Path:  c.Args().First(),
		Depth: c.Int("depth"),
	})
	if err != nil {
		return err
	}
	if err := expect(res, domain.ResDirEntries); err != nil {
		return err
	}
	for _, e := range res.Errors {
		fmt.Fprintf(c.App.ErrWriter, "warning: %s\n", e)
	}
	return render(c, res.Entries)
}

func fsMkdir(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	res, err := doOne(c, domain.RequestData{
		Type: domain.ReqDirCreate,
		Path: c.Args().First(),
		All:  c.Bool("parents"),
	})
	if err != nil {
		return err
	}
	return expect(res, domain.ResOk)
}

func fsRemove(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	res, err := doOne(c, domain.RequestData{
		Type: domain.ReqRemove,
		Path: c.Args().First(),
		All:  c.Bool("recursive"),
	})
	if err != nil {
		return err
	}
	return expect(res, domain.ResOk)
}

func fsTwoPath(typ domain.RequestType) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := requireArgs(c, 2); err != nil {
			return err
		}
		res, err := doOne(c, domain.RequestData{
			Type:          typ,
			Path:          c.Args().Get(0),
			Dst:           c.Args().Get(1),
			CreateParents: c.Bool("parents"),
		})
		if err != nil {
			return err
		}
		return expect(res, domain.ResOk)
	}
}

func fsExists(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	res, err := doOne(c, domain.RequestData{Type: domain.ReqExists, Path: c.Args().First()})
	if err != nil {
		return err
	}
	if err := expect(res, domain.ResExists); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, res.Exists)
	return err
}

// metadataView is Metadata with a readable timestamp.
type metadataView struct {
	Path     string          `json:"path" yaml:"path"`
	FileType domain.FileType `json:"file_type" yaml:"file_type"`
	Len      int64           `json:"len" yaml:"len"`
	ReadOnly bool            `json:"readonly" yaml:"readonly"`
	Modified time.Time       `json:"modified" yaml:"modified"`
}

func fsStat(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	res, err := doOne(c, domain.RequestData{Type: domain.ReqMetadata, Path: c.Args().First()})
	if err != nil {
		return err
	}
	if err := expect(res, domain.ResMetadata); err != nil {
		return err
	}
	if res.Metadata == nil {
		return fmt.Errorf("metadata response without metadata")
	}
	return render(c, metadataView{
		Path:     c.Args().First(),
		FileType: res.Metadata.FileType,
		Len:      res.Metadata.Len,
		ReadOnly: res.Metadata.ReadOnly,
		Modified: time.UnixMilli(res.Metadata.Modified),
	})
}
