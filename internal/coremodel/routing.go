package coremodel

// channelInputs 混音通道 → 路由矩阵源通道。仅可作为路由源的通道有映射。
var channelInputs = map[Channel]InputChannel{
	ChannelMic:     InputMic,
	ChannelChat:    InputChat,
	ChannelMusic:   InputMusic,
	ChannelGame:    InputGame,
	ChannelConsole: InputConsole,
	ChannelLineIn:  InputLineIn,
	ChannelSystem:  InputSystem,
	ChannelSample:  InputSamples,
}

// InputFor 返回通道对应的路由源。输出类通道（耳机、线路输出、返听）没有源。
func InputFor(ch Channel) (InputChannel, bool) {
	in, ok := channelInputs[ch]
	return in, ok
}

// ChannelFor 返回路由源对应的混音通道
func ChannelFor(in InputChannel) Channel {
	for ch, i := range channelInputs {
		if i == in {
			return ch
		}
	}
	return ChannelMic
}

// RoutingMatrix 路由矩阵：每个源通道连通的目的集合
type RoutingMatrix [InputCount]OutputSet

// Connected 判断边是否存在
func (m RoutingMatrix) Connected(in InputChannel, out OutputChannel) bool {
	if !in.Valid() {
		return false
	}
	return m[in].Has(out)
}

// WithEdge 返回设置指定边后的矩阵副本
func (m RoutingMatrix) WithEdge(in InputChannel, out OutputChannel, connected bool) RoutingMatrix {
	if !in.Valid() {
		return m
	}
	if connected {
		m[in] = m[in].Add(out)
	} else {
		m[in] = m[in].Remove(out)
	}
	return m
}
