// Package harvester is the manifest-driven replication engine:
// it copies a binding's METS manifest and content files from the
// source repository into destination storage, idempotently and with
// per-file failure isolation.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"bindharvest/pkg/ignore"
	"bindharvest/pkg/mets"
	"bindharvest/pkg/paths"
	"bindharvest/pkg/source"
	"bindharvest/pkg/storage"
	"bindharvest/pkg/types"

	"github.com/rs/zerolog"
)

// ChunkSize 是流式拷贝的缓冲上限：每次最多搬这么多字节，
// 大文件不会整体进内存
const ChunkSize = 10 * 1024 * 1024

// ErrEmptyMets 表示抓回来的 METS 是零字节
// 空 manifest 说明远端在异常状态，从它推不出任何文件，
// 对这个 binding 是硬失败；不过远端恢复后重试是安全的。
var ErrEmptyMets = errors.New("harvester: fetched METS document is empty")

// tmpSuffix 写入途中的暂存后缀。最终路径上只会通过 Rename 出现
// 完整文件，所以"非空即完成"的幂等判定不会被写了一半的文件骗到。
const tmpSuffix = ".tmp"

// Engine 对单个 binding 执行同步、阻塞的复制
//
// Engine 自己不开 goroutine 也不加锁：跨 binding 的并发由外部
// orchestrator 负责，每个并发 worker 配一套自己的 source/store 句柄。
type Engine struct {
	source source.Source
	store  storage.Store
	ignore *ignore.Matcher // 可以为 nil
	log    zerolog.Logger
}

func New(src source.Source, store storage.Store, ign *ignore.Matcher, log zerolog.Logger) *Engine {
	return &Engine{source: src, store: store, ignore: ign, log: log}
}

// -----------------------------------------------------------------------------
// 阶段 1+2: METS 复制
// -----------------------------------------------------------------------------

// HarvestMets 把 binding 的 METS 抓到 root/<bindingID>/subdir/ 下
//
// 幂等：目标处已有非空 METS 时直接返回，零额外写入。
// 失败模式：传输错误 (fatal，暂存文件已清掉，重跑会重试)；
// ErrEmptyMets (fatal，同上)。
func (e *Engine) HarvestMets(ctx context.Context, dc types.DCIdentifier, root, subdir string) error {
	final := paths.MetsPath(dc, root, subdir, "")

	// 1. 幂等检查：之前成功过就视为持久成立
	done, err := storage.Exists(ctx, e.store, final)
	if err != nil {
		return fmt.Errorf("harvester: check %s: %w", final, err)
	}
	if done {
		e.log.Debug().Str("binding", string(dc)).Str("path", final).Msg("METS already present, skipping")
		return nil
	}

	// 2. 确保目录存在 (幂等，含中间目录)
	if err := e.store.MkdirAll(ctx, path.Dir(final)); err != nil {
		return fmt.Errorf("harvester: ensure mets dir: %w", err)
	}

	// 3. 从源端拉流，写进 .tmp
	rc, err := e.source.FetchMets(ctx, dc)
	if err != nil {
		return fmt.Errorf("harvester: fetch METS for %s: %w", dc, err)
	}
	defer rc.Close()

	tmp := final + tmpSuffix
	size, err := e.copyToTmp(ctx, tmp, rc)
	if err != nil {
		return fmt.Errorf("harvester: write METS for %s: %w", dc, err)
	}

	// 4. 空 manifest 是硬失败，不留任何"看起来完成了"的文件
	if size == 0 {
		_ = e.store.Remove(ctx, tmp)
		return fmt.Errorf("%w: %s", ErrEmptyMets, dc)
	}

	// 5. 转正。此后 Exists(final) 才可能为真。
	if err := e.store.Rename(ctx, tmp, final); err != nil {
		_ = e.store.Remove(ctx, tmp)
		return fmt.Errorf("harvester: finalize METS for %s: %w", dc, err)
	}

	e.log.Info().Str("binding", string(dc)).Str("path", final).Int64("bytes", size).Msg("METS stored")
	return nil
}

// -----------------------------------------------------------------------------
// 阶段 3+4: 按 manifest 复制内容文件
// -----------------------------------------------------------------------------

// HarvestFiles 重新读取已落盘的 METS，把其中目标类型的文件逐个复制
//
// 永远从持久存储重新解析 manifest，不信任别的运行留下的内存对象：
// 断点续跑看到的必须是盘上真实存在的东西。
//
// 单个文件的传输失败会被记录并跳过，不中断剩下的文件；
// 只有 binding 级问题 (manifest 打不开/解析失败) 才返回 error。
func (e *Engine) HarvestFiles(ctx context.Context, dc types.DCIdentifier, metsPath, root, subdir string, ft types.FileType) (*Report, error) {
	m := mets.New(dc, func() (io.ReadCloser, error) {
		return e.store.Open(ctx, metsPath)
	})

	files, err := m.FilesOfType(ft)
	if err != nil {
		// ErrAmbiguousLocation / 畸形文档 / 打不开，都是 binding 级 fatal
		return nil, fmt.Errorf("harvester: parse METS %s: %w", metsPath, err)
	}

	report := &Report{DC: dc, FileType: ft}
	seenDirs := map[string]bool{}  // MkdirAll 去重
	sweepDirs := map[string]bool{} // 结尾清扫的目录集合

	for _, f := range files {
		dest := paths.FilePath(f.BindingID, f.Location, root, subdir)
		res := FileResult{Path: dest, Location: f.Location}
		sweepDirs[path.Dir(dest)] = true

		// 忽略集按 root 相对路径匹配 (例如 "1234/alto/00001.xml")
		if e.ignore.Matches(relTo(root, dest)) {
			res.Outcome = OutcomeIgnored
			report.add(res)
			continue
		}

		// 幂等：非空文件存在就跳过，重跑不重新下载
		done, err := storage.Exists(ctx, e.store, dest)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			report.add(res)
			e.logFailure(dc, res)
			continue
		}
		if done {
			res.Outcome = OutcomeSkipped
			report.add(res)
			continue
		}

		dir := path.Dir(dest)
		if !seenDirs[dir] {
			if err := e.store.MkdirAll(ctx, dir); err != nil {
				res.Outcome = OutcomeFailed
				res.Err = err
				report.add(res)
				e.logFailure(dc, res)
				continue
			}
			seenDirs[dir] = true
		}

		if err := e.transferFile(ctx, dc, f, dest); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			report.add(res)
			e.logFailure(dc, res)
			continue
		}

		res.Outcome = OutcomeDownloaded
		report.add(res)
	}

	// 阶段 5: 扫掉本 binding 目录下残留的暂存文件
	// (本次失败留下的已经就地删了，这里清的是之前崩掉的运行)。
	// 按全部目标目录扫，而不是只扫本次建过的目录：
	// 全量跳过的重跑也要能清掉上次崩溃留下的 .tmp。
	for dir := range sweepDirs {
		e.sweepTmp(ctx, dir)
	}

	e.summarize(report)
	return report, nil
}

// transferFile 单个文件的完整传输：拉流 -> .tmp -> 转正
func (e *Engine) transferFile(ctx context.Context, dc types.DCIdentifier, f mets.FileRecord, dest string) error {
	url, err := f.DownloadURL(dc)
	if err != nil {
		return err
	}

	rc, err := e.source.FetchFile(ctx, url)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := dest + tmpSuffix
	if _, err := e.copyToTmp(ctx, tmp, rc); err != nil {
		return err
	}
	if err := e.store.Rename(ctx, tmp, dest); err != nil {
		_ = e.store.Remove(ctx, tmp)
		return err
	}
	return nil
}

// copyToTmp 把 r 分块写入暂存路径，失败时确保暂存文件被删掉
func (e *Engine) copyToTmp(ctx context.Context, tmp string, r io.Reader) (int64, error) {
	w, err := e.store.Create(ctx, tmp)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, ChunkSize)
	n, copyErr := io.CopyBuffer(w, r, buf)
	closeErr := w.Close()

	if copyErr != nil {
		_ = e.store.Remove(ctx, tmp)
		return 0, copyErr
	}
	if closeErr != nil {
		_ = e.store.Remove(ctx, tmp)
		return 0, closeErr
	}
	return n, nil
}

// sweepTmp 删除目录下所有 *.tmp。失败只记日志：清扫是尽力而为。
func (e *Engine) sweepTmp(ctx context.Context, dir string) {
	names, err := e.store.List(ctx, dir)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.log.Warn().Err(err).Str("dir", dir).Msg("temp sweep failed")
		}
		return
	}
	for _, name := range names {
		if strings.HasSuffix(name, tmpSuffix) {
			if err := e.store.Remove(ctx, path.Join(dir, name)); err != nil {
				e.log.Warn().Err(err).Str("file", name).Msg("failed to remove stale temp file")
			}
		}
	}
}

func (e *Engine) logFailure(dc types.DCIdentifier, res FileResult) {
	e.log.Error().
		Str("binding", string(dc)).
		Str("location", res.Location).
		Str("path", res.Path).
		Err(res.Err).
		Msg("file transfer failed, continuing with remaining files")
}

// summarize 按原因汇总失败情况 (404 和 401 分开报，和人工排查的习惯一致)
func (e *Engine) summarize(r *Report) {
	ev := e.log.Info().
		Str("binding", string(r.DC)).
		Int("total", r.Total()).
		Int("downloaded", r.Downloaded()).
		Int("skipped", r.Skipped())
	if r.Ignored() > 0 {
		ev = ev.Int("ignored", r.Ignored())
	}
	if n := r.FailedWithStatus(404); n > 0 {
		ev = ev.Int("failed_404", n)
	}
	if n := r.FailedWithStatus(401); n > 0 {
		ev = ev.Int("failed_401", n)
	}
	if r.Failed() > 0 {
		ev = ev.Int("failed", r.Failed())
	}
	ev.Msg("binding files processed")
}

// relTo 把目标路径转成 root 相对形式，忽略集按这个形式匹配
func relTo(root, p string) string {
	if root == "" {
		return p
	}
	return strings.TrimPrefix(p, strings.TrimSuffix(root, "/")+"/")
}
