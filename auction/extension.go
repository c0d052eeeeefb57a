package auction

import "time"

// DefaultExtension 為最後一刻出價時拍賣延長的時間
const DefaultExtension = 5 * time.Minute

// ExtensionPolicy 決定出價是否需要延長拍賣結束時間（防狙擊）
// 剩餘時間落在 (0, Window] 內時，結束時間往後延長 Extension
type ExtensionPolicy struct {
	Extension time.Duration
}

// Window 回傳觸發延長的時間窗口，固定為延長時間的 1/5
func (p ExtensionPolicy) Window() time.Duration {
	return p.Extension / 5
}

// Apply 計算新的結束時間，第二個回傳值表示是否需要延長
func (p ExtensionPolicy) Apply(endTime, now time.Time) (time.Time, bool) {
	remaining := endTime.Sub(now)
	if remaining <= 0 || remaining > p.Window() {
		return endTime, false
	}
	return endTime.Add(p.Extension), true
}
