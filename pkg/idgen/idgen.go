// Package idgen 提供基于雪花算法的全局唯一 ID 生成
package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

var (
	sf   *sonyflake.Sonyflake
	once sync.Once
)

func instance() *sonyflake.Sonyflake {
	once.Do(func() {
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	})
	return sf
}

// GenID 生成全局唯一 ID；时钟异常时退化为纳秒时间戳
func GenID() uint64 {
	id, err := instance().NextID()
	if err != nil {
		return uint64(time.Now().UnixNano())
	}
	return id
}

// CommandID 生成交易指令 ID
func CommandID() string {
	return fmt.Sprintf("CMD-%d", GenID())
}

// FlowID 生成流水 ID
func FlowID() string {
	return fmt.Sprintf("FLOW-%d", GenID())
}
