package harvester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"bindharvest/pkg/ignore"
	"bindharvest/pkg/mets"
	"bindharvest/pkg/source"
	"bindharvest/pkg/storage"
	"bindharvest/pkg/storage/disk"
	"bindharvest/pkg/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDC = types.DCIdentifier("https://example.org/dc/1234")

// altoMETS 四个 ALTO 文件，每个恰好一个 location
const altoMETS = `<?xml version="1.0" encoding="UTF-8"?>
<mets:mets xmlns:mets="http://www.loc.gov/METS/" xmlns:xlink="http://www.w3.org/TR/xlink">
  <mets:fileSec>
    <mets:fileGrp USE="alto">
      <mets:file ID="a1" MIMETYPE="text/xml"><mets:FLocat LOCTYPE="URL" xlink:href="file://./alto/00001.xml"/></mets:file>
      <mets:file ID="a2" MIMETYPE="text/xml"><mets:FLocat LOCTYPE="URL" xlink:href="file://./alto/00002.xml"/></mets:file>
      <mets:file ID="a3" MIMETYPE="text/xml"><mets:FLocat LOCTYPE="URL" xlink:href="file://./alto/00003.xml"/></mets:file>
      <mets:file ID="a4" MIMETYPE="text/xml"><mets:FLocat LOCTYPE="URL" xlink:href="file://./alto/00004.xml"/></mets:file>
    </mets:fileGrp>
  </mets:fileSec>
</mets:mets>`

const ambiguousMETS = `<?xml version="1.0" encoding="UTF-8"?>
<mets:mets xmlns:mets="http://www.loc.gov/METS/" xmlns:xlink="http://www.w3.org/TR/xlink">
  <mets:fileSec>
    <mets:fileGrp USE="alto">
      <mets:file ID="a1" MIMETYPE="text/xml">
        <mets:FLocat LOCTYPE="URL" xlink:href="file://./alto/00001.xml"/>
        <mets:FLocat LOCTYPE="OTHER" xlink:href="somewhere/else"/>
      </mets:file>
    </mets:fileGrp>
  </mets:fileSec>
</mets:mets>`

// fakeSource 内存里的内容源
type fakeSource struct {
	mets    string
	metsErr error
	files   map[string]string // url -> content
	fail    map[string]error  // url -> 强制失败
}

func (f *fakeSource) FetchMets(ctx context.Context, dc types.DCIdentifier) (io.ReadCloser, error) {
	if f.metsErr != nil {
		return nil, f.metsErr
	}
	return io.NopCloser(strings.NewReader(f.mets)), nil
}

func (f *fakeSource) FetchFile(ctx context.Context, url string) (io.ReadCloser, error) {
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	if content, ok := f.files[url]; ok {
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return nil, &source.StatusError{Code: 404, URL: url}
}

// countingStore 记录写操作次数，用来验证幂等路径零写入
type countingStore struct {
	storage.Store
	creates int
}

func (c *countingStore) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	c.creates++
	return c.Store.Create(ctx, path)
}

func altoURL(n int) string {
	return fmt.Sprintf("%s/page-0000%d.xml", testDC, n)
}

func newEngine(t *testing.T, src source.Source) (*Engine, storage.Store) {
	t.Helper()
	st, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	return New(src, st, nil, zerolog.Nop()), st
}

func readAll(t *testing.T, st storage.Store, path string) string {
	t.Helper()
	r, err := st.Open(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestHarvestMets(t *testing.T) {
	e, st := newEngine(t, &fakeSource{mets: altoMETS})
	ctx := context.Background()

	require.NoError(t, e.HarvestMets(ctx, testDC, "downloads", ""))

	// 约定路径 + 完整内容
	assert.Equal(t, altoMETS, readAll(t, st, "downloads/1234/mets/1234_METS.xml"))

	// 暂存文件不残留
	names, err := st.List(ctx, "downloads/1234/mets")
	require.NoError(t, err)
	assert.Equal(t, []string{"1234_METS.xml"}, names)
}

func TestHarvestMets_Idempotent(t *testing.T) {
	st, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	counting := &countingStore{Store: st}
	e := New(&fakeSource{mets: altoMETS}, counting, nil, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, e.HarvestMets(ctx, testDC, "downloads", ""))
	writesAfterFirst := counting.creates

	// 第二次调用：零额外写入
	require.NoError(t, e.HarvestMets(ctx, testDC, "downloads", ""))
	assert.Equal(t, writesAfterFirst, counting.creates)
}

func TestHarvestMets_Empty(t *testing.T) {
	e, st := newEngine(t, &fakeSource{mets: ""})
	ctx := context.Background()

	err := e.HarvestMets(ctx, testDC, "downloads", "")
	assert.ErrorIs(t, err, ErrEmptyMets)

	// 目标处不能留下任何"看起来完成了"的 METS
	_, err = st.Stat(ctx, "downloads/1234/mets/1234_METS.xml")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.Stat(ctx, "downloads/1234/mets/1234_METS.xml.tmp")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHarvestMets_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	e, st := newEngine(t, &fakeSource{metsErr: boom})
	ctx := context.Background()

	err := e.HarvestMets(ctx, testDC, "downloads", "")
	assert.ErrorIs(t, err, boom)

	// 失败后重跑必须重新尝试：目标处什么都没有
	done, err := storage.Exists(ctx, st, "downloads/1234/mets/1234_METS.xml")
	require.NoError(t, err)
	assert.False(t, done)
}

// errAfterReader 先给一部分字节，然后报传输错误 (模拟流中途断掉)
type errAfterReader struct {
	data []byte
	err  error
	done bool
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, r.err
}

type midStreamSource struct {
	fakeSource
}

func (m *midStreamSource) FetchMets(ctx context.Context, dc types.DCIdentifier) (io.ReadCloser, error) {
	return io.NopCloser(&errAfterReader{data: []byte("<mets:mets>partial"), err: errors.New("read timeout")}), nil
}

func TestHarvestMets_MidStreamFailureLeavesNoPartial(t *testing.T) {
	e, st := newEngine(t, &midStreamSource{})
	ctx := context.Background()

	err := e.HarvestMets(ctx, testDC, "downloads", "")
	require.Error(t, err)

	// 写了一半的文件不能出现在最终路径，也不能留在暂存路径
	_, statErr := st.Stat(ctx, "downloads/1234/mets/1234_METS.xml")
	assert.ErrorIs(t, statErr, storage.ErrNotFound)
	_, statErr = st.Stat(ctx, "downloads/1234/mets/1234_METS.xml.tmp")
	assert.ErrorIs(t, statErr, storage.ErrNotFound)
}

// writeMets 直接把 METS 放到约定位置 (模拟阶段 2 已完成)
func writeMets(t *testing.T, st storage.Store, doc string) string {
	t.Helper()
	ctx := context.Background()
	metsPath := "downloads/1234/mets/1234_METS.xml"
	w, err := st.Create(ctx, metsPath)
	require.NoError(t, err)
	_, err = io.WriteString(w, doc)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return metsPath
}

func TestHarvestFiles_AllSucceed(t *testing.T) {
	src := &fakeSource{files: map[string]string{
		altoURL(1): "<alto>1</alto>",
		altoURL(2): "<alto>2</alto>",
		altoURL(3): "<alto>3</alto>",
		altoURL(4): "<alto>4</alto>",
	}}
	e, st := newEngine(t, src)
	metsPath := writeMets(t, st, altoMETS)

	report, err := e.HarvestFiles(context.Background(), testDC, metsPath, "downloads", "", types.AltoFile)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total())
	assert.Equal(t, 4, report.Downloaded())
	assert.Equal(t, 0, report.Failed())

	assert.Equal(t, "<alto>3</alto>", readAll(t, st, "downloads/1234/alto/00003.xml"))
}

func TestHarvestFiles_FailureIsolation(t *testing.T) {
	// 第 2 个文件失败，其余成功
	src := &fakeSource{
		files: map[string]string{
			altoURL(1): "<alto>1</alto>",
			altoURL(3): "<alto>3</alto>",
			altoURL(4): "<alto>4</alto>",
		},
		fail: map[string]error{
			altoURL(2): &source.StatusError{Code: 404, URL: altoURL(2)},
		},
	}
	e, st := newEngine(t, src)
	metsPath := writeMets(t, st, altoMETS)
	ctx := context.Background()

	// 不返回 error：单文件失败被隔离
	report, err := e.HarvestFiles(ctx, testDC, metsPath, "downloads", "", types.AltoFile)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Downloaded())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.FailedWithStatus(404))

	// 1/3/4 内容完整落盘
	assert.Equal(t, "<alto>1</alto>", readAll(t, st, "downloads/1234/alto/00001.xml"))
	assert.Equal(t, "<alto>3</alto>", readAll(t, st, "downloads/1234/alto/00003.xml"))
	assert.Equal(t, "<alto>4</alto>", readAll(t, st, "downloads/1234/alto/00004.xml"))

	// 失败的那个不存在
	_, statErr := st.Stat(ctx, "downloads/1234/alto/00002.xml")
	assert.ErrorIs(t, statErr, storage.ErrNotFound)

	// 失败详情可追溯
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "file://./alto/00002.xml", failures[0].Location)
}

func TestHarvestFiles_SkipsExisting(t *testing.T) {
	src := &fakeSource{files: map[string]string{
		altoURL(1): "<alto>1</alto>",
		altoURL(2): "<alto>2</alto>",
		altoURL(3): "<alto>3</alto>",
		altoURL(4): "<alto>4</alto>",
	}}
	e, st := newEngine(t, src)
	metsPath := writeMets(t, st, altoMETS)
	ctx := context.Background()

	// 预置一个已完成的文件 (内容故意不同，验证不会被覆盖)
	w, err := st.Create(ctx, "downloads/1234/alto/00002.xml")
	require.NoError(t, err)
	_, err = io.WriteString(w, "previous run content")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	report, err := e.HarvestFiles(ctx, testDC, metsPath, "downloads", "", types.AltoFile)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Downloaded())
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, "previous run content", readAll(t, st, "downloads/1234/alto/00002.xml"))
}

func TestHarvestFiles_AmbiguousLocationIsFatal(t *testing.T) {
	e, st := newEngine(t, &fakeSource{})
	metsPath := writeMets(t, st, ambiguousMETS)

	report, err := e.HarvestFiles(context.Background(), testDC, metsPath, "downloads", "", types.AltoFile)
	assert.ErrorIs(t, err, mets.ErrAmbiguousLocation)
	assert.Nil(t, report)
}

func TestHarvestFiles_MissingMetsIsFatal(t *testing.T) {
	e, _ := newEngine(t, &fakeSource{})

	_, err := e.HarvestFiles(context.Background(), testDC, "downloads/1234/mets/1234_METS.xml", "downloads", "", types.AltoFile)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHarvestFiles_IgnoreSet(t *testing.T) {
	src := &fakeSource{files: map[string]string{
		altoURL(1): "<alto>1</alto>",
		altoURL(2): "<alto>2</alto>",
		altoURL(3): "<alto>3</alto>",
		altoURL(4): "<alto>4</alto>",
	}}
	st, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	matcher, err := ignore.NewMatcher("", "1234/alto/00001.xml")
	require.NoError(t, err)
	e := New(src, st, matcher, zerolog.Nop())
	metsPath := writeMets(t, st, altoMETS)
	ctx := context.Background()

	report, err := e.HarvestFiles(ctx, testDC, metsPath, "downloads", "", types.AltoFile)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Ignored())
	assert.Equal(t, 3, report.Downloaded())
	_, statErr := st.Stat(ctx, "downloads/1234/alto/00001.xml")
	assert.ErrorIs(t, statErr, storage.ErrNotFound)
}

func TestHarvestFiles_SweepsStaleTemp(t *testing.T) {
	src := &fakeSource{files: map[string]string{
		altoURL(1): "<alto>1</alto>",
		altoURL(2): "<alto>2</alto>",
		altoURL(3): "<alto>3</alto>",
		altoURL(4): "<alto>4</alto>",
	}}
	e, st := newEngine(t, src)
	metsPath := writeMets(t, st, altoMETS)
	ctx := context.Background()

	// 之前崩掉的运行留下的暂存文件
	w, err := st.Create(ctx, "downloads/1234/alto/00009.xml.tmp")
	require.NoError(t, err)
	_, err = io.WriteString(w, "stale")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = e.HarvestFiles(ctx, testDC, metsPath, "downloads", "", types.AltoFile)
	require.NoError(t, err)

	_, statErr := st.Stat(ctx, "downloads/1234/alto/00009.xml.tmp")
	assert.ErrorIs(t, statErr, storage.ErrNotFound)
}

func TestHarvestFiles_SweepsStaleTempWhenAllSkipped(t *testing.T) {
	e, st := newEngine(t, &fakeSource{})
	metsPath := writeMets(t, st, altoMETS)
	ctx := context.Background()

	// 全部 4 个文件都已完成
	for n := 1; n <= 4; n++ {
		w, err := st.Create(ctx, fmt.Sprintf("downloads/1234/alto/0000%d.xml", n))
		require.NoError(t, err)
		_, err = fmt.Fprintf(w, "<alto>%d</alto>", n)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	// 外加一个之前崩掉的运行留下的暂存文件
	w, err := st.Create(ctx, "downloads/1234/alto/00002.xml.tmp")
	require.NoError(t, err)
	_, err = io.WriteString(w, "stale")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	report, err := e.HarvestFiles(ctx, testDC, metsPath, "downloads", "", types.AltoFile)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Skipped())

	// 即使一个字节都没下载，残留的暂存文件也要被清掉
	_, statErr := st.Stat(ctx, "downloads/1234/alto/00002.xml.tmp")
	assert.ErrorIs(t, statErr, storage.ErrNotFound)
}
