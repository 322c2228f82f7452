// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package renderer implements the core command and presentation
// contracts on the Vulkan API. The engine core never touches Vulkan
// directly; everything it submits or presents goes through the types
// in this package.
package renderer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/cadence/core"
)

const defaultFencePollInterval = 2 * time.Millisecond

// vkResult converts a Vulkan result into an error carrying the
// classification the engine core acts on. Out-of-date and suboptimal
// surfaces are transient; a lost device or surface is not.
func vkResult(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return fmt.Errorf("%s: %v: %w", op, vk.Error(result), core.ErrFrameSkipped)
	case vk.ErrorDeviceLost, vk.ErrorSurfaceLost:
		return fmt.Errorf("%s: %v: %w", op, vk.Error(result), core.ErrDeviceLost)
	default:
		return errors.New(op + ": " + vk.Error(result).Error())
	}
}

// NewVulkanBackend creates the logical device and queue for the given
// physical device and surface, and wires up everything the engine core
// needs to run frames against it.
func NewVulkanBackend(vkpd vk.PhysicalDevice, vks vk.Surface, cfg Configuration, logger *log.Logger) (*VulkanBackend, error) {
	v := &VulkanBackend{
		configuration:  cfg,
		physicalDevice: vkpd,
		surface:        vks,
		logger:         logger.WithField("component", "renderer"),
	}

	if err := v.findQueueFamily(); err != nil {
		return nil, err
	}
	if err := v.createDevice(); err != nil {
		return nil, err
	}
	if err := v.selectSurfaceFormat(); err != nil {
		v.Destroy()
		return nil, err
	}
	if err := v.createPipelineCache(); err != nil {
		v.Destroy()
		return nil, err
	}

	interval := time.Duration(cfg.FencePollInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultFencePollInterval
	}
	v.queue = newVulkanQueue(v.logicalDevice, v.deviceQueue, interval, v.logger)

	return v, nil
}

// VulkanBackend owns the logical device, the graphics queue and the
// pipeline cache. It hands out the core contract implementations.
type VulkanBackend struct {
	configuration Configuration
	logger        *log.Entry

	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	deviceQueue    vk.Queue

	imageFormat     vk.Format
	imageColorspace vk.ColorSpace

	pipelineCache vk.PipelineCache

	graphicsQueueIndex uint32

	queue *VulkanQueue
}

func (v *VulkanBackend) findQueueFamily() error {
	var (
		queueFamilyCount uint32
		queueFamilies    []vk.QueueFamilyProperties
	)
	vk.GetPhysicalDeviceQueueFamilyProperties(v.physicalDevice, &queueFamilyCount, nil)
	queueFamilies = make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(v.physicalDevice, &queueFamilyCount, queueFamilies)

	if queueFamilyCount == 0 {
		return errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}

	for i := uint32(0); i < queueFamilyCount; i++ {
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(v.physicalDevice, i, v.surface, &supportsPresent)
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && supportsPresent.B() {
			v.graphicsQueueIndex = i
			return nil
		}
	}
	return errors.New("vulkan error: could not find a queue family with graphics and present support")
}

func (v *VulkanBackend) createDevice() error {
	// TODO: Make extension name escaping bearable
	requiredExtensions := []string{
		vk.KhrSwapchainExtensionName + "\x00",
	}
	for _, ext := range v.configuration.DeviceExtensions {
		requiredExtensions = append(requiredExtensions, ext+"\x00")
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: v.graphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1, 0},
	}}

	var vkDevice vk.Device
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(requiredExtensions)),
		PpEnabledExtensionNames: requiredExtensions,
	}
	if err := vk.Error(vk.CreateDevice(v.physicalDevice, &dci, nil, &vkDevice)); err != nil {
		return errors.New("vk.CreateDevice(): " + err.Error())
	}

	var deviceQueue vk.Queue
	vk.GetDeviceQueue(vkDevice, v.graphicsQueueIndex, 0, &deviceQueue)

	v.deviceQueue = deviceQueue
	v.logicalDevice = vkDevice
	return nil
}

func (v *VulkanBackend) selectSurfaceFormat() error {
	var (
		surfaceFormatCount uint32
		surfaceFormats     []vk.SurfaceFormat
	)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, nil)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	surfaceFormats = make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, v.surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}

	surfaceFormats[0].Deref()
	v.imageFormat = surfaceFormats[0].Format
	v.imageColorspace = surfaceFormats[0].ColorSpace
	if v.imageFormat == vk.FormatUndefined {
		v.imageFormat = vk.FormatB8g8r8a8Unorm
	}
	return nil
}

func (v *VulkanBackend) createPipelineCache() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}

	if v.configuration.PipelineCachePath != "" {
		data, err := LoadPipelineCache(v.configuration.PipelineCachePath)
		switch {
		case err != nil:
			v.logger.WithError(err).Warn("pipeline cache load failed, starting cold")
		case len(data) > 0:
			pcci.InitialDataSize = uint(len(data))
			pcci.PInitialData = unsafe.Pointer(&data[0])
		}
	}

	var pipelineCache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(v.logicalDevice, &pcci, nil, &pipelineCache)); err != nil {
		return errors.New("vk.CreatePipelineCache(): " + err.Error())
	}
	v.pipelineCache = pipelineCache
	return nil
}

func (v *VulkanBackend) persistPipelineCache() {
	if v.configuration.PipelineCachePath == "" || v.pipelineCache == vk.NullPipelineCache {
		return
	}

	var size uint
	if err := vk.Error(vk.GetPipelineCacheData(v.logicalDevice, v.pipelineCache, &size, nil)); err != nil {
		v.logger.WithError(err).Warn("pipeline cache read failed")
		return
	}
	if size == 0 {
		return
	}
	data := make([]byte, size)
	if err := vk.Error(vk.GetPipelineCacheData(v.logicalDevice, v.pipelineCache, &size, unsafe.Pointer(&data[0]))); err != nil {
		v.logger.WithError(err).Warn("pipeline cache read failed")
		return
	}
	if err := SavePipelineCache(v.configuration.PipelineCachePath, data[:size]); err != nil {
		v.logger.WithError(err).Warn("pipeline cache save failed")
		return
	}
	v.logger.WithField("bytes", size).Debug("pipeline cache persisted")
}

// Queue returns the backend's graphics queue.
func (v *VulkanBackend) Queue() core.Queue {
	return v.queue
}

// Recorder creates command allocators and lists on the backend device.
func (v *VulkanBackend) Recorder() core.CommandRecorder {
	return &VulkanRecorder{
		device:           v.logicalDevice,
		queueFamilyIndex: v.graphicsQueueIndex,
	}
}

// Textures allocates engine textures on the backend device.
func (v *VulkanBackend) Textures() core.TextureAllocator {
	return &VulkanTextureAllocator{
		device:         v.logicalDevice,
		physicalDevice: v.physicalDevice,
	}
}

// PipelineCache exposes the device pipeline cache for pipeline
// construction.
func (v *VulkanBackend) PipelineCache() vk.PipelineCache {
	return v.pipelineCache
}

// CreateSwapchain builds a swapchain on the backend surface at the
// configured size.
func (v *VulkanBackend) CreateSwapchain() (core.Swapchain, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var imageAvailableSemaphore vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(v.logicalDevice, &sci, nil, &imageAvailableSemaphore)); err != nil {
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}

	s := &VulkanSwapchain{
		device:                  v.logicalDevice,
		physicalDevice:          v.physicalDevice,
		surface:                 v.surface,
		queue:                   v.deviceQueue,
		minImages:               v.configuration.SwapchainSize,
		imageFormat:             v.imageFormat,
		imageColorspace:         v.imageColorspace,
		imageAvailableSemaphore: imageAvailableSemaphore,
	}
	if err := s.create(nil, v.configuration.ScreenWidth, v.configuration.ScreenHeight); err != nil {
		vk.DestroySemaphore(v.logicalDevice, imageAvailableSemaphore, nil)
		return nil, err
	}
	return s, nil
}

// Destroy tears the backend down. The caller drains the engine first;
// outstanding queue work when Destroy runs is a bug.
func (v *VulkanBackend) Destroy() {
	if v.queue != nil {
		v.queue.destroy()
	}
	v.persistPipelineCache()
	if v.pipelineCache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(v.logicalDevice, v.pipelineCache, nil)
	}
	if v.logicalDevice != nil {
		vk.DestroyDevice(v.logicalDevice, nil)
	}
}

type pendingFence struct {
	fence   vk.Fence
	counter *core.TimelineCounter
	value   uint64
}

// VulkanQueue drives a vk.Queue and reports timeline completion
// through fences. The Vulkan 1.0 binding has no timeline semaphores,
// so every enqueued signal is an empty submission with a fence and a
// pump goroutine polls the fences and completes the counter.
type VulkanQueue struct {
	device vk.Device
	queue  vk.Queue
	logger *log.Entry

	mu      sync.Mutex
	pending []pendingFence

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newVulkanQueue(device vk.Device, queue vk.Queue, interval time.Duration, logger *log.Entry) *VulkanQueue {
	q := &VulkanQueue{
		device: device,
		queue:  queue,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.pump(interval)
	return q
}

// Submit implements interface
func (q *VulkanQueue) Submit(lists ...core.CommandList) error {
	buffers := make([]vk.CommandBuffer, len(lists))
	for idx, list := range lists {
		vl, ok := list.(*VulkanList)
		if !ok {
			return fmt.Errorf("renderer.Submit(): list %d is not a vulkan command list: %w", idx, core.ErrInvalidArgument)
		}
		buffers[idx] = vl.buffer
	}

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}}
	return vkResult("vk.QueueSubmit()", vk.QueueSubmit(q.queue, 1, submit, vk.NullFence))
}

// EnqueueSignal implements interface
func (q *VulkanQueue) EnqueueSignal(counter *core.TimelineCounter, value uint64) error {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(q.device, &fci, nil, &fence)); err != nil {
		return errors.New("vk.CreateFence(): " + err.Error())
	}

	// An empty submission with a fence signals once all prior work on
	// the queue has executed.
	if err := vkResult("vk.QueueSubmit()", vk.QueueSubmit(q.queue, 0, nil, fence)); err != nil {
		vk.DestroyFence(q.device, fence, nil)
		return err
	}

	q.mu.Lock()
	q.pending = append(q.pending, pendingFence{fence: fence, counter: counter, value: value})
	q.mu.Unlock()
	return nil
}

// EnqueueWait implements interface. Without timeline semaphores a
// queue-side wait degrades to a host stall before further submission.
func (q *VulkanQueue) EnqueueWait(counter *core.TimelineCounter, value uint64) error {
	counter.Wait(value, -1)
	return nil
}

// Poll checks pending fences and completes their counters. The pump
// goroutine calls it continuously; callers may call it to hasten
// completion.
func (q *VulkanQueue) Poll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.pending[:0]
	for _, p := range q.pending {
		switch status := vk.GetFenceStatus(q.device, p.fence); status {
		case vk.Success:
			vk.DestroyFence(q.device, p.fence, nil)
			p.counter.Complete(p.value)
		case vk.NotReady:
			remaining = append(remaining, p)
		default:
			q.logger.WithField("value", p.value).Error("vk.GetFenceStatus(): " + vk.Error(status).Error())
			vk.DestroyFence(q.device, p.fence, nil)
		}
	}
	q.pending = remaining
}

func (q *VulkanQueue) pump(interval time.Duration) {
	defer close(q.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.Poll()
		}
	}
}

func (q *VulkanQueue) destroy() {
	q.stopOnce.Do(func() { close(q.stop) })
	<-q.done

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.pending {
		fences := []vk.Fence{p.fence}
		if err := vk.Error(vk.WaitForFences(q.device, 1, fences, vk.True, math.MaxUint64)); err != nil {
			q.logger.WithField("value", p.value).Error("vk.WaitForFences(): " + err.Error())
		}
		vk.DestroyFence(q.device, p.fence, nil)
		p.counter.Complete(p.value)
	}
	q.pending = nil
}

// VulkanRecorder creates command pools and buffers on a device.
type VulkanRecorder struct {
	device           vk.Device
	queueFamilyIndex uint32
}

// CreateAllocator implements interface
func (r *VulkanRecorder) CreateAllocator() (core.CommandAllocator, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: r.queueFamilyIndex,
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(r.device, &cpci, nil, &commandPool)); err != nil {
		return nil, errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	return &VulkanAllocator{device: r.device, pool: commandPool}, nil
}

// CreateList implements interface
func (r *VulkanRecorder) CreateList(allocator core.CommandAllocator) (core.CommandList, error) {
	va, ok := allocator.(*VulkanAllocator)
	if !ok {
		return nil, fmt.Errorf("renderer.CreateList(): not a vulkan allocator: %w", core.ErrInvalidArgument)
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        va.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(r.device, &cbai, commandBuffers)); err != nil {
		return nil, errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffers[0], &cbbi)); err != nil {
		return nil, errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}
	return &VulkanList{buffer: commandBuffers[0]}, nil
}

// VulkanAllocator wraps a command pool. Resetting it recycles the
// memory of every command buffer recorded from it.
type VulkanAllocator struct {
	device vk.Device
	pool   vk.CommandPool
}

// Reset implements interface
func (a *VulkanAllocator) Reset() error {
	return vkResult("vk.ResetCommandPool()", vk.ResetCommandPool(a.device, a.pool, 0))
}

// Destroy implements interface
func (a *VulkanAllocator) Destroy() {
	vk.DestroyCommandPool(a.device, a.pool, nil)
}

// VulkanList is one primary command buffer in recording or executable
// state.
type VulkanList struct {
	buffer vk.CommandBuffer
}

// Buffer exposes the underlying command buffer to recording code.
func (l *VulkanList) Buffer() vk.CommandBuffer {
	return l.buffer
}

// Close implements interface
func (l *VulkanList) Close() error {
	return vkResult("vk.EndCommandBuffer()", vk.EndCommandBuffer(l.buffer))
}

// VulkanSwapchain implements the swapchain contract on a window
// surface.
type VulkanSwapchain struct {
	device         vk.Device
	physicalDevice vk.PhysicalDevice
	surface        vk.Surface
	queue          vk.Queue

	minImages       uint32
	imageFormat     vk.Format
	imageColorspace vk.ColorSpace

	width  uint32
	height uint32

	handle vk.Swapchain
	images []vk.Image

	imageAvailableSemaphore vk.Semaphore
	imageIndex              uint32
	acquired                bool
}

func (s *VulkanSwapchain) create(oldSwapchain vk.Swapchain, width, height uint32) error {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(s.physicalDevice, s.surface, &surfaceCapabilities)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		flagSupported := surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0
		if flagSupported {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	var swapchain vk.Swapchain
	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         s.surface,
		MinImageCount:   s.minImages,
		ImageFormat:     s.imageFormat,
		ImageColorSpace: s.imageColorspace,
		ImageExtent: vk.Extent2D{
			Width:  width,
			Height: height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}
	if err := vkResult("vk.CreateSwapchain()", vk.CreateSwapchain(s.device, &scci, nil, &swapchain)); err != nil {
		return err
	}
	if oldSwapchain != nil {
		vk.DestroySwapchain(s.device, oldSwapchain, nil)
	}
	s.handle = swapchain
	s.width = width
	s.height = height
	s.acquired = false

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(s.device, s.handle, &numImages, nil)); err != nil {
		return errors.New("vk.GetSwapchainImages(num): " + err.Error())
	}
	s.images = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(s.device, s.handle, &numImages, s.images)); err != nil {
		return errors.New("vk.GetSwapchainImages(images): " + err.Error())
	}
	return nil
}

func (s *VulkanSwapchain) acquire() error {
	result := vk.AcquireNextImage(s.device, s.handle, math.MaxUint64, s.imageAvailableSemaphore, vk.NullFence, &s.imageIndex)
	if err := vkResult("vk.AcquireNextImage()", result); err != nil {
		return err
	}
	s.acquired = true
	return nil
}

// CurrentBackBufferIndex implements interface
func (s *VulkanSwapchain) CurrentBackBufferIndex() int {
	if !s.acquired {
		if err := s.acquire(); err != nil {
			return 0
		}
	}
	return int(s.imageIndex)
}

// Present implements interface
func (s *VulkanSwapchain) Present() error {
	if !s.acquired {
		if err := s.acquire(); err != nil {
			return err
		}
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.imageAvailableSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{s.imageIndex},
	}
	s.acquired = false
	return vkResult("vk.QueuePresent()", vk.QueuePresent(s.queue, &presentInfo))
}

// Resize implements interface
func (s *VulkanSwapchain) Resize(width, height uint32) error {
	return s.create(s.handle, width, height)
}

// AcquireBackBuffers implements interface
func (s *VulkanSwapchain) AcquireBackBuffers() ([]core.BackBuffer, error) {
	buffers := make([]core.BackBuffer, 0, len(s.images))
	for idx := range s.images {
		var imageView vk.ImageView
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    s.images[idx],
			ViewType: vk.ImageViewType2d,
			Format:   s.imageFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		if err := vk.Error(vk.CreateImageView(s.device, &ivci, nil, &imageView)); err != nil {
			for _, b := range buffers {
				b.Release()
			}
			return nil, fmt.Errorf("vk.CreateImageView()[%d]: %s", idx, err.Error())
		}
		buffers = append(buffers, &VulkanBackBuffer{device: s.device, image: s.images[idx], view: imageView})
	}
	return buffers, nil
}

// Destroy implements interface
func (s *VulkanSwapchain) Destroy() {
	vk.DestroySemaphore(s.device, s.imageAvailableSemaphore, nil)
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
	s.images = nil
}

// VulkanBackBuffer is a view onto one swapchain image. The image
// itself lives and dies with the swapchain; Release only drops the
// view.
type VulkanBackBuffer struct {
	device vk.Device
	image  vk.Image
	view   vk.ImageView
}

// Image exposes the swapchain image for render pass setup.
func (b *VulkanBackBuffer) Image() vk.Image {
	return b.image
}

// View exposes the image view for framebuffer construction.
func (b *VulkanBackBuffer) View() vk.ImageView {
	return b.view
}

// Release implements interface
func (b *VulkanBackBuffer) Release() {
	if b.view != vk.NullImageView {
		vk.DestroyImageView(b.device, b.view, nil)
		b.view = vk.NullImageView
	}
}

// VulkanTextureAllocator creates device-local textures.
type VulkanTextureAllocator struct {
	device         vk.Device
	physicalDevice vk.PhysicalDevice
}

// CreateDepthTexture implements interface
func (t *VulkanTextureAllocator) CreateDepthTexture(width, height uint32) (core.Texture, error) {
	depthFormat := vk.FormatD16Unorm
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    depthFormat,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(t.device, &ici, nil, &image)); err != nil {
		return nil, errors.New("vk.CreateImage(): " + err.Error())
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(t.device, image, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := t.getMemoryType(memoryRequirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(t.device, image, nil)
		return nil, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(t.device, &mai, nil, &memory)); err != nil {
		vk.DestroyImage(t.device, image, nil)
		return nil, errors.New("vk.AllocateMemory(): " + err.Error())
	}

	if err := vk.Error(vk.BindImageMemory(t.device, image, memory, 0)); err != nil {
		vk.FreeMemory(t.device, memory, nil)
		vk.DestroyImage(t.device, image, nil)
		return nil, errors.New("vk.BindImageMemory(): " + err.Error())
	}

	ivci := vk.ImageViewCreateInfo{
		SType:  vk.StructureTypeImageViewCreateInfo,
		Format: depthFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			LevelCount: 1,
			LayerCount: 1,
		},
		ViewType: vk.ImageViewType2d,
		Image:    image,
	}

	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(t.device, &ivci, nil, &view)); err != nil {
		vk.FreeMemory(t.device, memory, nil)
		vk.DestroyImage(t.device, image, nil)
		return nil, errors.New("vk.CreateImageView(): " + err.Error())
	}

	return &VulkanTexture{
		device: t.device,
		image:  image,
		view:   view,
		memory: memory,
		format: depthFormat,
	}, nil
}

func (t *VulkanTextureAllocator) getMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(t.physicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for idx := uint32(0); idx < memoryProperties.MemoryTypeCount; idx++ {
		if (typeBits & 1) == 1 {
			memoryProperties.MemoryTypes[idx].Deref()
			if (memoryProperties.MemoryTypes[idx].PropertyFlags & properties) == properties {
				return idx, nil
			}
		}
		typeBits >>= 1
	}
	return 0, errors.New("requested memory type not found")
}

// VulkanTexture is a device texture with its view and backing memory.
type VulkanTexture struct {
	device vk.Device
	image  vk.Image
	view   vk.ImageView
	memory vk.DeviceMemory
	format vk.Format
}

// View exposes the image view for framebuffer construction.
func (t *VulkanTexture) View() vk.ImageView {
	return t.view
}

// Format reports the texture format.
func (t *VulkanTexture) Format() vk.Format {
	return t.format
}

// Release implements interface
func (t *VulkanTexture) Release() {
	vk.DestroyImageView(t.device, t.view, nil)
	vk.DestroyImage(t.device, t.image, nil)
	vk.FreeMemory(t.device, t.memory, nil)
}
