package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/darrenldl/blockyarchive-sub000/ops"
	"github.com/darrenldl/blockyarchive-sub000/pkg/units"
	"github.com/darrenldl/blockyarchive-sub000/rescue"
	"github.com/darrenldl/blockyarchive-sub000/sbxblock"
)

// operational marks err as an exit-2 failure (a container that's corrupt,
// infeasible to repair, or otherwise can't be serviced) rather than the
// default exit-1 treatment for a bad invocation.
func (c *CLI) operational(err error) error {
	if err == nil {
		return nil
	}
	c.exitCode = 2
	return err
}

type encodeOpts struct {
	Global
	commonFlags
	In   string `short:"i" long:"in" description:"input file path"`
	Out  string `short:"o" long:"out" description:"output SBX container path"`
	Hash string `long:"hash" description:"store a digest of the input in the metadata block: sha1, sha256, sha512, blake2b-256, blake2b-512, blake2s-128, blake2s-256"`
}

func (c *CLI) encode(ctx context.Context, opts encodeOpts) error {
	p, err := opts.commonFlags.toParams()
	if err != nil {
		return pkgerrors.Wrap(err, "encode")
	}
	if opts.In == "" || opts.Out == "" {
		return errors.New("encode: --in and --out are required")
	}

	var hashFunc *sbxblock.HashFunction
	if opts.Hash != "" {
		hf, err := ops.HashFuncFromString(opts.Hash)
		if err != nil {
			return pkgerrors.Wrap(err, "encode")
		}
		hashFunc = &hf
	}

	runCtx, cancel := withCancelContext()
	defer cancel()

	res, err := ops.Encode(runCtx, p, ops.EncodeOptions{
		InputPath:  opts.In,
		OutputPath: opts.Out,
		HashFunc:   hashFunc,
	})
	if errors.Is(err, ops.ErrCancelled) {
		c.log.Warn("encode cancelled", "data_chunks_written", res.TotalDataChunks)
		return nil
	}
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "encode"))
	}

	c.log.Info("encode complete", "data_chunks", res.TotalDataChunks)
	return nil
}

type decodeOpts struct {
	Global
	In    string `short:"i" long:"in" description:"input SBX container path"`
	Out   string `short:"o" long:"out" description:"output file path"`
	Burst int    `long:"burst" description:"interleaving depth the container was originally encoded with"`
}

func (c *CLI) decode(ctx context.Context, opts decodeOpts) error {
	if opts.In == "" || opts.Out == "" {
		return errors.New("decode: --in and --out are required")
	}

	runCtx, cancel := withCancelContext()
	defer cancel()

	res, err := ops.Decode(runCtx, opts.In, opts.Out, opts.Burst)
	if errors.Is(err, ops.ErrCancelled) {
		c.log.Warn("decode cancelled", "bytes_written", res.BytesWritten)
		return nil
	}
	if errors.Is(err, ops.ErrHashMismatch) {
		return c.operational(pkgerrors.Wrap(err, "decode"))
	}
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "decode"))
	}

	c.log.Info("decode complete", "bytes_written", res.BytesWritten, "hash_checked", res.HashChecked, "hash_ok", res.HashOK)
	return nil
}

type rescueOpts struct {
	Global
	In            string `short:"i" long:"in" description:"input byte stream to scan"`
	OutDir        string `short:"o" long:"out" description:"directory to write recovered per-UID containers to"`
	ForceMisalign bool   `long:"force-misalign" description:"scan one byte at a time instead of the normal stride"`
	LogPath       string `long:"log" description:"progress log path, enabling resume of an interrupted rescue"`
	UID           string `long:"uid" description:"restrict recovery to this UID (hex)"`
	From          int64  `long:"from" description:"byte offset to start scanning at"`
	To            int64  `long:"to" description:"byte offset to stop scanning at (0 means end of stream)"`
}

func (c *CLI) rescue(ctx context.Context, opts rescueOpts) error {
	if opts.In == "" || opts.OutDir == "" {
		return errors.New("rescue: --in and --out are required")
	}

	var filter rescue.BlockFilter
	if opts.UID != "" {
		uid, err := parseUID(opts.UID)
		if err != nil {
			return pkgerrors.Wrap(err, "parsing --uid")
		}
		filter.UID = &uid
	}

	stats, err := ops.Rescue(ops.RescueOptions{
		InputPath:     opts.In,
		OutputDir:     opts.OutDir,
		ForceMisalign: opts.ForceMisalign,
		Filter:        filter,
		LogPath:       opts.LogPath,
		FromPos:       opts.From,
		ToPos:         opts.To,
	})
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "rescue"))
	}

	c.log.Info("rescue complete",
		"bytes_processed", stats.BytesProcessed,
		"meta_blocks", stats.MetaCount,
		"data_blocks", stats.DataCount)
	return nil
}

type showOpts struct {
	Global
	In   string `short:"i" long:"in" description:"input SBX container path"`
	JSON bool   `long:"json" description:"print as JSON instead of plain text"`
}

func (c *CLI) show(ctx context.Context, opts showOpts) error {
	if opts.In == "" {
		return errors.New("show: --in is required")
	}

	info, err := ops.Show(opts.In)
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "show"))
	}

	if opts.JSON {
		return printJSON(showJSON{
			Version:   int(info.Version),
			UID:       ops.UIDBase58(info.UID),
			FileName:  info.FileName,
			FileSize:  info.FileSize,
			UsesRS:    info.UsesRS,
			RSData:    info.RSData,
			RSParity:  info.RSParity,
			Hash:      info.HashBase58(),
			ParentUID: parentUIDOrEmpty(info),
		})
	}

	fmt.Printf("version: %d\n", info.Version)
	fmt.Printf("uid: %s\n", ops.UIDBase58(info.UID))
	if info.FileName != "" {
		fmt.Printf("file name: %s\n", info.FileName)
	}
	if info.HaveFileSize {
		fmt.Printf("file size: %d (%s)\n", info.FileSize, units.Bytes(int64(info.FileSize)).Short())
	}
	if info.HaveHash {
		fmt.Printf("hash: %s\n", info.HashBase58())
	}
	if info.UsesRS {
		fmt.Printf("rs data: %d, rs parity: %d\n", info.RSData, info.RSParity)
	}
	if info.HaveParentUID {
		fmt.Printf("parent uid: %s\n", ops.UIDBase58(info.ParentUID))
	}
	return nil
}

type showJSON struct {
	Version   int    `json:"version"`
	UID       string `json:"uid"`
	FileName  string `json:"file_name,omitempty"`
	FileSize  uint64 `json:"file_size,omitempty"`
	UsesRS    bool   `json:"uses_rs"`
	RSData    int    `json:"rs_data,omitempty"`
	RSParity  int    `json:"rs_parity,omitempty"`
	Hash      string `json:"hash,omitempty"`
	ParentUID string `json:"parent_uid,omitempty"`
}

func parentUIDOrEmpty(info ops.Info) string {
	if !info.HaveParentUID {
		return ""
	}
	return ops.UIDBase58(info.ParentUID)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type repairOpts struct {
	Global
	In    string `short:"i" long:"in" description:"SBX container path to repair in place"`
	Burst int    `long:"burst" description:"interleaving depth the container was originally encoded with"`
}

func (c *CLI) repair(ctx context.Context, opts repairOpts) error {
	if opts.In == "" {
		return errors.New("repair: --in is required")
	}

	res, err := ops.Repair(opts.In, opts.Burst)
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "repair"))
	}

	c.log.Info("repair complete", "meta_repaired", res.MetaRepaired, "data_repaired", res.DataRepaired)
	return nil
}

type checkOpts struct {
	Global
	In   string `short:"i" long:"in" description:"SBX container path to check"`
	JSON bool   `long:"json" description:"print as JSON instead of plain text"`
}

func (c *CLI) check(ctx context.Context, opts checkOpts) error {
	if opts.In == "" {
		return errors.New("check: --in is required")
	}

	res, err := ops.Check(opts.In)
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "check"))
	}

	if opts.JSON {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		fmt.Printf("meta ok: %d, meta failed: %d\n", res.MetaOK, res.MetaFailed)
		fmt.Printf("data ok: %d, data failed: %d\n", res.DataOK, res.DataFailed)
	}

	if res.MetaFailed > 0 || res.DataFailed > 0 {
		return c.operational(fmt.Errorf("check: %d block(s) failed CRC", res.MetaFailed+res.DataFailed))
	}
	return nil
}

type sortOpts struct {
	Global
	In  string `short:"i" long:"in" description:"input container path (blocks in any order)"`
	Out string `short:"o" long:"out" description:"output container path (blocks at canonical positions)"`
}

func (c *CLI) sort(ctx context.Context, opts sortOpts) error {
	if opts.In == "" || opts.Out == "" {
		return errors.New("sort: --in and --out are required")
	}

	res, err := ops.Sort(opts.In, opts.Out)
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "sort"))
	}

	c.log.Info("sort complete", "blocks_written", res.BlocksWritten)
	return nil
}

type calcOpts struct {
	Global
	commonFlags
	Size int64 `long:"size" description:"input size in bytes to plan for"`
	JSON bool  `long:"json" description:"print as JSON instead of plain text"`
}

func (c *CLI) calc(ctx context.Context, opts calcOpts) error {
	p, err := opts.commonFlags.toParams()
	if err != nil {
		return pkgerrors.Wrap(err, "calc")
	}

	res, err := ops.Calc(p, opts.Size)
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "calc"))
	}

	if opts.JSON {
		return printJSON(res)
	}

	fmt.Printf("block size: %d (%s)\n", res.BlockSize, units.Bytes(int64(res.BlockSize)).Short())
	fmt.Printf("data size per block: %d (%s)\n", res.DataSize, units.Bytes(int64(res.DataSize)).Short())
	fmt.Printf("metadata block count: %d\n", res.MetaBlockCount)
	fmt.Printf("first data sequence number: %d\n", res.FirstDataSeqNum)
	fmt.Printf("total blocks: %d\n", res.TotalBlocks)
	fmt.Printf("total container size: %s\n", units.ContainerSize(res.TotalBlocks, res.BlockSize).Short())
	return nil
}

type updateOpts struct {
	Global
	In      string `short:"i" long:"in" description:"existing SBX container to patch in place"`
	FNM     string `long:"fnm" description:"new stored file name"`
	NoFNM   bool   `long:"no-fnm" description:"remove the stored file name field"`
	SNM     string `long:"snm" description:"new stored container name"`
	NoSNM   bool   `long:"no-snm" description:"remove the stored container name field"`
	FSZ     int64  `long:"fsz" description:"new stored file size (bytes)"`
	SetFSZ  bool   `long:"set-fsz" description:"apply --fsz (0 is a valid file size, so this must be explicit)"`
	FDT     int64  `long:"fdt" description:"new stored last-modified time (unix seconds)"`
	SetFDT  bool   `long:"set-fdt" description:"apply --fdt"`
	Hash    string `long:"hash" description:"rehash the stored data in place under this function: sha1, sha256, sha512, blake2b-256, blake2b-512, blake2s-128, blake2s-256"`
	NoHash  bool   `long:"no-hsh" description:"remove the stored hash field"`
	Burst   int    `long:"burst" description:"interleaving depth the container was originally encoded with"`
}

func (c *CLI) update(ctx context.Context, opts updateOpts) error {
	if opts.In == "" {
		return errors.New("update: --in is required")
	}

	uopts := ops.UpdateOptions{Burst: opts.Burst}
	if opts.FNM != "" {
		uopts.SetFNM = &opts.FNM
	}
	uopts.RemoveFNM = opts.NoFNM
	if opts.SNM != "" {
		uopts.SetSNM = &opts.SNM
	}
	uopts.RemoveSNM = opts.NoSNM
	if opts.SetFSZ {
		fsz := uint64(opts.FSZ)
		uopts.SetFSZ = &fsz
	}
	if opts.SetFDT {
		uopts.SetFDT = &opts.FDT
	}
	if opts.Hash != "" {
		hf, err := ops.HashFuncFromString(opts.Hash)
		if err != nil {
			return pkgerrors.Wrap(err, "update")
		}
		uopts.Rehash = &hf
	}
	uopts.RemoveHSH = opts.NoHash

	runCtx, cancel := withCancelContext()
	defer cancel()

	res, err := ops.Update(runCtx, opts.In, uopts)
	if errors.Is(err, ops.ErrCancelled) {
		c.log.Warn("update cancelled")
		return nil
	}
	if err != nil {
		return c.operational(pkgerrors.Wrap(err, "update"))
	}

	c.log.Info("update complete", "rehashed", len(res.Hash) > 0)
	return nil
}
