package mr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ekv/internal/client"
	"ekv/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// intermediate keys are <key> \x00 <map task> \x00 <n>
const sep = "\x00"

type Worker struct {
	WorkerId int
	dir      *client.DirectoryClient
	conf     TaskConfig
	mapf     MapFunc
	reducef  ReduceFunc
	lg       *zap.SugaredLogger
}

func (w *Worker) intermediate(reduce int) string {
	return fmt.Sprintf("%s/mr-inter-%d", w.conf.Root, reduce)
}

func (w *Worker) output() string {
	return w.conf.Root + "/mr-out"
}

func (w *Worker) open(ctx context.Context, path string) (*client.KVClient, error) {
	return client.NewKVClient(ctx, w.dir, path)
}

func (w *Worker) doTask(ctx context.Context, task TaskInfo) error {
	switch task.Stage {
	case STAGE_MAP:
		return w.doMap(ctx, task)
	case STAGE_REDUCE:
		return w.doReduce(ctx, task)
	}
	return errors.Wrapf(types.ErrUnknownOperation, "stage %d", task.Stage)
}

func (w *Worker) doMap(ctx context.Context, task TaskInfo) error {
	buckets := make([][]string, w.conf.NReduce)
	for n, kv := range w.mapf(task.FileName, task.Contents) {
		r := ihash(kv.Key) % w.conf.NReduce
		buckets[r] = append(buckets[r], kv.Key+sep+fmt.Sprint(task.TaskId)+sep+fmt.Sprint(n), kv.Value)
	}
	for r, args := range buckets {
		if len(args) == 0 {
			continue
		}
		kv, err := w.open(ctx, w.intermediate(r))
		if err != nil {
			return err
		}
		res, err := kv.Run(ctx, types.OpPut, args)
		if err != nil {
			return err
		}
		for _, v := range res {
			// a rerun of the same task writes the same keys
			if v != types.ResultOK && v != types.ResultDuplicateKey {
				return errors.Errorf("put intermediate of map %d: %s", task.TaskId, v)
			}
		}
	}
	w.lg.Debugf("worker %d finished map %d (%s)", w.WorkerId, task.TaskId, task.FileName)
	return nil
}

func (w *Worker) doReduce(ctx context.Context, task TaskInfo) error {
	in, err := w.open(ctx, w.intermediate(task.TaskId))
	if errors.Is(err, types.ErrPathNotFound) {
		// no map emitted into this partition
		return nil
	}
	if err != nil {
		return err
	}
	keys, err := in.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	vals, err := in.Run(ctx, types.OpGet, keys)
	if err != nil {
		return err
	}

	kva := make(kvSlice, 0, len(keys))
	for i, k := range keys {
		kva = append(kva, KeyValue{Key: k[:strings.Index(k, sep)], Value: vals[i]})
	}
	sort.Sort(kva)

	out, err := w.open(ctx, w.output())
	if err != nil {
		return err
	}
	var args []string
	for i := 0; i < len(kva); {
		j := i + 1
		for j < len(kva) && kva[j].Key == kva[i].Key {
			j++
		}
		values := make([]string, 0, j-i)
		for k := i; k < j; k++ {
			values = append(values, kva[k].Value)
		}
		args = append(args, kva[i].Key, w.reducef(kva[i].Key, values))
		i = j
	}
	if _, err := out.Run(ctx, types.OpPut, args); err != nil {
		return err
	}
	w.lg.Debugf("worker %d finished reduce %d, %d keys", w.WorkerId, task.TaskId, len(args)/2)
	return nil
}
