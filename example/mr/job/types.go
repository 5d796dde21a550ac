package mr

import (
	"hash/fnv"
)

// Map functions return a slice of KeyValue.
type KeyValue struct {
	Key   string
	Value string
}

type kvSlice []KeyValue

func (s kvSlice) Len() int           { return len(s) }
func (s kvSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s kvSlice) Less(i, j int) bool { return s[i].Key < s[j].Key }

type MapFunc func(name, contents string) []KeyValue
type ReduceFunc func(key string, values []string) string

type TaskConfig struct {
	// Root directory of the job inside the store.
	Root    string
	NReduce int
	// Parallel workers.
	Limits int
	// Chains per intermediate file.
	Blocks int
}

type TaskStage uint8

const (
	STAGE_MAP TaskStage = iota
	STAGE_REDUCE
	STAGE_DONE
)

type TaskInfo struct {
	Stage    TaskStage
	TaskId   int
	FileName string
	Contents string
}

// use ihash(key) % NReduce to choose the reduce
// task number for each KeyValue emitted by Map.
func ihash(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & 0x7fffffff)
}
