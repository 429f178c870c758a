package timeseries

import (
	"fmt"
	"sort"
	"time"

	"wisefido-insight/internal/models"
)

// Sample 窗口选取结果中的一个采样
type Sample struct {
	Timestamp int64
	Value     float64
}

// ResolveWindow 把窗口说明解析为具体 [from, to] 毫秒区间
// dashboard 类型使用调用方提供的环境范围（面板当前查看范围）
func ResolveWindow(spec models.WindowSpec, now time.Time, ambientFrom, ambientTo int64) (int64, int64, error) {
	switch spec.Type {
	case models.WindowDashboard, "":
		if ambientFrom == 0 && ambientTo == 0 {
			return 0, 0, fmt.Errorf("dashboard window requires an ambient range")
		}
		if ambientFrom > ambientTo {
			return 0, 0, fmt.Errorf("invalid ambient range: from %d after to %d", ambientFrom, ambientTo)
		}
		return ambientFrom, ambientTo, nil

	case models.WindowRelative:
		d, err := relativeDuration(spec.Amount, spec.Unit)
		if err != nil {
			return 0, 0, err
		}
		to := now.UnixMilli()
		return to - d.Milliseconds(), to, nil

	case models.WindowAbsolute:
		if spec.From > spec.To {
			return 0, 0, fmt.Errorf("invalid absolute window: from %d after to %d", spec.From, spec.To)
		}
		return spec.From, spec.To, nil

	default:
		return 0, 0, fmt.Errorf("unknown window type: %s", spec.Type)
	}
}

func relativeDuration(amount int, unit string) (time.Duration, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("relative window amount must be positive, got %d", amount)
	}
	switch unit {
	case "s":
		return time.Duration(amount) * time.Second, nil
	case "m":
		return time.Duration(amount) * time.Minute, nil
	case "h":
		return time.Duration(amount) * time.Hour, nil
	case "d":
		return time.Duration(amount) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown relative window unit: %q", unit)
	}
}

// SelectOptions 窗口选取参数
// Since 为水位线过滤（严格大于才入选）；CadenceMS 为自动更新节拍毫秒数，
// 仅在 Since 与节拍同时存在时叠加 "窗口内最新时间戳 - 节拍" 下限，
// 约束周期性提问在无界窗口里回看的深度
type SelectOptions struct {
	From      int64
	To        int64
	Since     *int64
	CadenceMS int64
}

// SelectWindow 在一列序列上选取窗口内的采样
// times 必须升序（前置条件，乱序输入行为未定义）；nil 值跳过不入选。
// 窗口为 [from, to] 闭区间：起点取第一个 >= from 的下标，
// 终点取第一个 > to 的下标（不含）；to 之后无采样时窗口延伸到序列末尾。
// 第二个返回值是迭代期间观察到的最大时间戳（含被 Since/节拍下限滤掉的采样，
// 它是新水位线候选）；窗口内没有任何采样时为 nil——这是"还没有数据"的
// 正常结果，不是错误
func SelectWindow(times []int64, values []*float64, opts SelectOptions) ([]Sample, *int64) {
	start := sort.Search(len(times), func(i int) bool { return times[i] >= opts.From })
	if start == len(times) {
		return nil, nil
	}
	end := sort.Search(len(times), func(i int) bool { return times[i] > opts.To })
	if start >= end {
		return nil, nil
	}

	// intervalStart 下限：水位线和节拍都存在时才启用
	var floor int64
	hasFloor := false
	if opts.Since != nil && opts.CadenceMS > 0 {
		floor = times[end-1] - opts.CadenceMS
		hasFloor = true
	}

	var samples []Sample
	var latestTS int64
	hasLatest := false

	for i := start; i < end; i++ {
		ts := times[i]
		if !hasLatest || ts > latestTS {
			latestTS = ts
			hasLatest = true
		}
		if opts.Since != nil && ts <= *opts.Since {
			continue
		}
		if hasFloor && ts < floor {
			continue
		}
		if i < len(values) && values[i] != nil {
			samples = append(samples, Sample{Timestamp: ts, Value: *values[i]})
		}
	}

	if !hasLatest {
		return samples, nil
	}
	return samples, &latestTS
}
