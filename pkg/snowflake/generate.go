package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// epoch 2026-01-01T00:00:00Z，签到记录与消息 ID 都从这里起算
const epochMillis int64 = 1767225600000

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error

	errGeneratorUninitial = errors.New("snowflake generator is not initialized")
)

// nodeID 高 5 位 datacenter，低 5 位 machine，共 10 位
func nodeID(machineID, dataCenterID int64) (int64, error) {
	if machineID < 0 || machineID > 31 {
		return 0, fmt.Errorf("invalid snowflake machine id %d, want 0..31", machineID)
	}
	if dataCenterID < 0 || dataCenterID > 31 {
		return 0, fmt.Errorf("invalid snowflake datacenter id %d, want 0..31", dataCenterID)
	}
	return dataCenterID<<5 | machineID, nil
}

// Init 初始化节点，进程内只生效一次；同一部署里的 server 与 worker 要用不同的 machine id
func Init(machineID, dataCenterID int64) error {
	once.Do(func() {
		id, err := nodeID(machineID, dataCenterID)
		if err != nil {
			initErr = err
			return
		}

		snowflake.Epoch = epochMillis
		node, initErr = snowflake.NewNode(id)
	})

	return initErr
}

func NextID() (int64, error) {
	if node == nil {
		return 0, errGeneratorUninitial
	}

	return node.Generate().Int64(), nil
}

// Time 还原 ID 的生成时间，排查离线设备补传的记录时使用
func Time(id int64) time.Time {
	return time.UnixMilli(snowflake.ParseInt64(id).Time()).UTC()
}
