// Package bootstrap はHTTPサービスプロセスの起動と停止を提供する。
//
// 環境からリッスン設定を読み込み、"<module>:<attribute>" 形式の参照で
// アプリケーションを解決し、ソケットをバインドして配信し、シグナルを受けて
// 猶予期間内にグレースフルに停止する。アプリケーションの内部には関与せず、
// http.Handlerとしてリクエストを委譲するだけである。
//
// 状態遷移:
//
//	Unconfigured → Configured → Running → Stopping → Stopped
//
// 遷移は一方向で、Stoppedから再びRunningになることはない。
package bootstrap
