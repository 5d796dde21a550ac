package mr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ekv/internal/client"
	"ekv/internal/common"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Master struct {
	dir  *client.DirectoryClient
	conf TaskConfig
	lg   *zap.SugaredLogger
}

func NewMaster(dir *client.DirectoryClient, conf TaskConfig, lg *zap.SugaredLogger) *Master {
	if conf.NReduce <= 0 {
		conf.NReduce = 1
	}
	if conf.Limits <= 0 {
		conf.Limits = 2
	}
	if conf.Blocks <= 0 {
		conf.Blocks = 1
	}
	if conf.Root == "" {
		conf.Root = fmt.Sprintf("/mr/%d", common.Nrand())
	}
	return &Master{dir: dir, conf: conf, lg: common.OrNop(lg)}
}

func (m *Master) Root() string {
	return m.conf.Root
}

// setup creates the job directory with its intermediate and output files.
func (m *Master) setup(ctx context.Context) error {
	if err := m.dir.CreateDirectories(ctx, m.conf.Root); err != nil {
		return err
	}
	w := Worker{conf: m.conf}
	files := []string{w.output()}
	for r := 0; r < m.conf.NReduce; r++ {
		files = append(files, w.intermediate(r))
	}
	for _, f := range files {
		if _, err := m.dir.OpenOrCreate(ctx, f, "", m.conf.Blocks, 1, types.FlagPinned); err != nil {
			return errors.Wrapf(err, "create %s", f)
		}
	}
	return nil
}

// runStage hands tasks to Limits workers and waits for all of them.
func (m *Master) runStage(ctx context.Context, workers []*Worker, tasks []TaskInfo) error {
	ch := make(chan TaskInfo)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		terr error
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			for task := range ch {
				if err := w.doTask(ctx, task); err != nil {
					m.lg.Warnf("worker %d task %d failed %v", w.WorkerId, task.TaskId, err)
					mu.Lock()
					terr = common.JoinErrors(terr, err)
					mu.Unlock()
				}
			}
		}(w)
	}
	for _, t := range tasks {
		ch <- t
	}
	close(ch)
	wg.Wait()
	return terr
}

// Run executes mapf over inputs (name -> contents) and reducef over the grouped
// intermediate pairs. The result is read back from the output file.
func (m *Master) Run(ctx context.Context, inputs map[string]string, mapf MapFunc, reducef ReduceFunc) (map[string]string, error) {
	if err := m.setup(ctx); err != nil {
		return nil, err
	}
	workers := make([]*Worker, m.conf.Limits)
	for i := range workers {
		workers[i] = &Worker{WorkerId: i, dir: m.dir, conf: m.conf, mapf: mapf, reducef: reducef, lg: m.lg}
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	maps := make([]TaskInfo, len(names))
	for i, name := range names {
		maps[i] = TaskInfo{Stage: STAGE_MAP, TaskId: i, FileName: name, Contents: inputs[name]}
	}
	m.lg.Infof("job %s: %d map tasks", m.conf.Root, len(maps))
	if err := m.runStage(ctx, workers, maps); err != nil {
		return nil, err
	}

	reduces := make([]TaskInfo, m.conf.NReduce)
	for r := range reduces {
		reduces[r] = TaskInfo{Stage: STAGE_REDUCE, TaskId: r}
	}
	m.lg.Infof("job %s: %d reduce tasks", m.conf.Root, len(reduces))
	if err := m.runStage(ctx, workers, reduces); err != nil {
		return nil, err
	}
	return m.collect(ctx, workers[0].output())
}

func (m *Master) collect(ctx context.Context, path string) (map[string]string, error) {
	out, err := client.NewKVClient(ctx, m.dir, path)
	if err != nil {
		return nil, err
	}
	keys, err := out.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return map[string]string{}, err
	}
	vals, err := out.Run(ctx, types.OpGet, keys)
	if err != nil {
		return nil, err
	}
	res := make(map[string]string, len(keys))
	for i, k := range keys {
		res[k] = vals[i]
	}
	return res, nil
}

// Clean removes the job directory.
func (m *Master) Clean(ctx context.Context) error {
	return m.dir.RemoveAll(ctx, m.conf.Root)
}
