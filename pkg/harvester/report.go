package harvester

import (
	"fmt"

	"bindharvest/pkg/source"
	"bindharvest/pkg/types"
)

// Outcome 是单个文件在一次 HarvestFiles 调用中的结局
type Outcome string

const (
	// OutcomeDownloaded 本次真的传了字节
	OutcomeDownloaded Outcome = "downloaded"
	// OutcomeSkipped 目标处已有非空文件，视为之前已完成
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored 在忽略集内，不允许下载
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFailed 传输失败，已记录并继续处理后面的文件
	OutcomeFailed Outcome = "failed"
)

// FileResult 记录一个文件的处理结果
// Err 只在 OutcomeFailed 时非 nil。
type FileResult struct {
	Path     string // 目标路径
	Location string // METS 中的来源位置
	Outcome  Outcome
	Err      error
}

// Report 是一次 HarvestFiles 调用的结构化结果
//
// 调用成功返回只代表"每个文件都尝试过，失败被隔离了"，
// 不代表全部成功；想知道哪些文件失败要看这里，而不是猜日志。
type Report struct {
	DC       types.DCIdentifier
	FileType types.FileType
	Results  []FileResult
}

func (r *Report) add(res FileResult) { r.Results = append(r.Results, res) }

func (r *Report) count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

func (r *Report) Total() int      { return len(r.Results) }
func (r *Report) Downloaded() int { return r.count(OutcomeDownloaded) }
func (r *Report) Skipped() int    { return r.count(OutcomeSkipped) }
func (r *Report) Ignored() int    { return r.count(OutcomeIgnored) }
func (r *Report) Failed() int     { return r.count(OutcomeFailed) }

// FailedWithStatus 统计以特定 HTTP 状态失败的文件数 (404/401 要分开报)
func (r *Report) FailedWithStatus(code int) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed && source.StatusCode(res.Err) == code {
			n++
		}
	}
	return n
}

// Failures 返回全部失败项 (顺序与处理顺序一致)
func (r *Report) Failures() []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) String() string {
	return fmt.Sprintf("binding %s: %d total, %d downloaded, %d skipped, %d ignored, %d failed",
		r.DC, r.Total(), r.Downloaded(), r.Skipped(), r.Ignored(), r.Failed())
}
